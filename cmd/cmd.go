package cmd

import (
	"context"
	"log/slog"

	"github.com/runixlabs/runes-indexer/internal/config"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:  "runix",
	Long: `Runes indexer: follows the Bitcoin chain and serves indexed rune state over HTTP`,
}

func init() {
	var configFile string

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file, e.g. `./config.yaml`")
	flags.String("network", "mainnet", "network to connect to, `mainnet` or `testnet`")

	config.BindPFlag("network", flags.Lookup("network"))

	cobra.OnInitialize(func() {
		if configFile != "" {
			config.SetConfigFile(configFile)
		}
		conf := config.Load()

		if err := logger.Init(conf.Logger); err != nil {
			logger.Panic("failed to initialize logger", slogx.Error(err), slog.Any("config", conf.Logger))
		}
	})

	rootCmd.AddCommand(
		NewRunCommand(),
		NewMigrateCommand(),
		NewVersionCommand(),
	)
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("failed to execute command", slogx.Error(err))
	}
}
