package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/infra/pgstore"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply result store schema migrations",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if err := pgstore.Migrate(cfg.Postgres.DSN); err != nil {
				log.Fatal().Err(err).Msg("migration failed")
			}
			log.Info().Msg("migrations applied")
		},
	}
}
