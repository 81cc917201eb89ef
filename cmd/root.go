package cmd

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Run() {
	var command = &cobra.Command{
		Use:   "mediaforge",
		Short: "Async media processing: gateway + workers over a durable queue",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is a dev convenience; absence is fine.
			_ = godotenv.Load()
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(gatewayCmd())
	command.AddCommand(workerCmd())
	command.AddCommand(migrateCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}
