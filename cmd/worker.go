package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/infra/pgstore"
	"github.com/atmikgoswami/mediaforge/internal/infra/redisq"
	"github.com/atmikgoswami/mediaforge/internal/infra/s3sink"
	"github.com/atmikgoswami/mediaforge/internal/transform"
	"github.com/atmikgoswami/mediaforge/internal/worker"
)

func workerCmd() *cobra.Command {
	var (
		consumerName string
		baseBackoff  time.Duration
		maxBackoff   time.Duration
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start a media-processing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			initSentry(cfg)
			defer sentry.Flush(2 * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			broker := redisq.New(cfg.Redis, cfg.Worker.EnqueueMaxWait)
			if err := broker.Init(ctx); err != nil {
				return err
			}

			results, err := pgstore.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer results.Close()

			sink, err := s3sink.New(ctx, cfg.S3)
			if err != nil {
				return err
			}

			reclaimer := redisq.NewReclaimer(broker, results, consumerName+"-reclaimer",
				cfg.Worker.LeaseDuration, cfg.Worker.LeaseDuration/2)
			go func() {
				if err := reclaimer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Ctx(ctx).Error().Err(err).Msg("reclaimer stopped with error")
				}
			}()

			rt := &worker.Runtime{
				Broker:   broker,
				Status:   broker,
				Results:  results,
				Sink:     sink,
				Registry: transform.NewRegistry(),
				Cfg: worker.Config{
					ConsumerName: consumerName,
					Concurrency:  cfg.Worker.Concurrency,
					ReceiveBlock: cfg.Worker.ReceiveBlock,
					BaseBackoff:  baseBackoff,
					MaxBackoff:   maxBackoff,
				},
			}

			if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	command.Flags().StringVar(&consumerName, "consumer", "worker-1", "Worker consumer name")
	command.Flags().DurationVar(&baseBackoff, "base-backoff", 500*time.Millisecond, "Base retry backoff duration")
	command.Flags().DurationVar(&maxBackoff, "max-backoff", 30*time.Second, "Max retry backoff duration")

	return command
}
