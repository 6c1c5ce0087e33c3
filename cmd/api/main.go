package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

type rootFlags struct {
	logLevel string
	logJSON  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "blog-api",
		Short:         "Multi-tenant blogging API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), flags)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(_ *cobra.Command, _ []string) error {
				return runMigrate(flags)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Seed roles, permissions and the admin account",
			RunE: func(_ *cobra.Command, _ []string) error {
				return runSeed(flags)
			},
		},
	)
	return root
}

// loadConfig reads the configuration and sets up logging, letting flags override the file.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logJSON {
		cfg.Log.JSON = true
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(cfg.Log.Level)
	logCfg.JSON = cfg.Log.JSON
	logger.Init(logCfg)
	return cfg, nil
}
