package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jzx17/goretry/internal/config"
)

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigFile string
	EnvFiles   []string
	LogLevel   string
}

var (
	globalFlags GlobalFlags
	appConfig   *config.AppConfig
	logger      *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "retrydemo",
	Short: "Retry demo against an unstable HTTP endpoint",
	Long: `retrydemo runs an endpoint that fails on demand and a scheduler that calls it
through the retry executor.

  retrydemo serve          # start the unstable endpoint and /metrics
  retrydemo run            # fire stateless and/or stateful retries periodically
  retrydemo fetch 500      # call the endpoint once`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(globalFlags.EnvFiles...); err != nil {
			return err
		}

		cfg, err := config.Load(globalFlags.ConfigFile)
		if err != nil {
			return err
		}
		if globalFlags.LogLevel != "" {
			cfg.Logging.Level = globalFlags.LogLevel
		}
		appConfig = cfg

		logger, err = newLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&globalFlags.EnvFiles, "env-file", nil, ".env files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchCmd)
}

// newLogger builds a zap logger from the logging section
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	return zc.Build()
}
