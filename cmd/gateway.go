package cmd

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/atmikgoswami/mediaforge/internal/api"
	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/health"
	"github.com/atmikgoswami/mediaforge/internal/infra/pgstore"
	"github.com/atmikgoswami/mediaforge/internal/infra/redisq"
	"github.com/atmikgoswami/mediaforge/internal/infra/s3sink"
)

func gatewayCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "gateway",
		Short: "Start the submission/status gateway",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cfg := config.Load()
			initSentry(cfg)
			defer sentry.Flush(2 * time.Second)

			broker := redisq.New(cfg.Redis, cfg.Worker.EnqueueMaxWait)
			if err := broker.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("broker unreachable at startup")
			}

			results, err := pgstore.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("result store unreachable at startup")
			}
			defer results.Close()

			sink, err := s3sink.New(ctx, cfg.S3)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to build storage sink")
			}

			monitor := health.NewMonitor(15*time.Second,
				health.Probe{Name: "broker", Check: broker.Ping},
				health.Probe{Name: "result-store", Check: results.Ping},
				health.Probe{Name: "sink", Check: sink.Ping},
			)
			go monitor.Run(ctx)

			server := api.NewServer(cfg, broker, broker, results, sink, monitor)
			server.Run(port)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the gateway on")
	return command
}

func initSentry(cfg *config.Config) {
	if cfg.SentryDSN == "" {
		return
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}); err != nil {
		log.Error().Err(err).Msg("sentry init failed")
	}
}
