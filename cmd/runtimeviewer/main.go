package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"runtimeviewer/internal/config"
	"runtimeviewer/internal/dataset"
	"runtimeviewer/internal/storage"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "runtimeviewer",
	Short: "Browse and rank recorded runtime errors across game rounds",
	Long: `runtimeviewer loads a dataset of game rounds with the runtime errors
each round recorded, and serves filtered, collated and ranked views of it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, parseCmd, topCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLoader builds the dataset loader described by cfg.
func newLoader(cfg config.Config, onLoad func(dataset.State, int, time.Duration)) (*dataset.Loader, error) {
	opts := dataset.Options{
		URL:     cfg.Dataset.URL,
		Timeout: time.Duration(cfg.Dataset.TimeoutSeconds) * time.Second,
		Logger:  logger,
		OnLoad:  onLoad,
	}
	if cfg.Dataset.File != "" {
		store, err := storage.NewRoundStorage(cfg.Dataset.File)
		if err != nil {
			return nil, fmt.Errorf("initialise storage: %w", err)
		}
		opts.Store = store
	}
	return dataset.NewLoader(opts), nil
}
