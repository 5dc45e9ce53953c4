package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/productos-api/internal/config"
	"github.com/vyrodovalexey/productos-api/internal/handler"
)

// newRootCommand builds the CLI. Running it without a subcommand serves
// the API.
func newRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "productos-api",
		Short:         "Products API server",
		Long:          "A small HTTP API that stores products as a JSON array in a flat file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to a YAML config file (defaults to $"+config.EnvConfigFile+")")

	serveCmd := newServeCommand(&configFile)
	rootCmd.RunE = serveCmd.RunE

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newInitCommand(&configFile))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// newServeCommand creates the serve command.
func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("server error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

// newInitCommand creates the init command, which only prepares the data file.
func newInitCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data file if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			if _, err := openStore(cfg); err != nil {
				logger.Error("initialization failed", zap.Error(err))
				return err
			}

			logger.Info("data file ready",
				zap.String("store_driver", cfg.StoreDriver),
				zap.String("data_file_path", cfg.DataFilePath),
			)
			fmt.Fprintln(cmd.OutOrStdout(), cfg.DataFilePath)
			return nil
		},
	}
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), handler.Version)
		},
	}
}

// bootstrap loads configuration and builds the logger.
func bootstrap(configFile string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	return cfg, logger, nil
}
