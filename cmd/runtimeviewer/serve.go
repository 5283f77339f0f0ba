package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"runtimeviewer/internal/config"
	"runtimeviewer/internal/dataset"
	"runtimeviewer/internal/metrics"
	"runtimeviewer/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the dataset and serve the viewer over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address for the web server (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Address = serveAddr
	}
	logger.Info("configuration loaded",
		zap.String("path", configPath),
		zap.Int("servers", len(cfg.Servers)),
		zap.String("dataset_url", cfg.Dataset.URL),
		zap.String("dataset_file", cfg.Dataset.File))

	collectors := metrics.New()
	loader, err := newLoader(cfg, func(state dataset.State, rounds int, _ time.Duration) {
		collectors.ObserveLoad(state.String(), rounds)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader.Start(ctx)

	srv := server.New(server.Options{
		Address:  cfg.Address,
		Loader:   loader,
		Servers:  cfg.Servers,
		Colors:   cfg.Colors(),
		Links:    cfg.Links,
		MemoSize: cfg.MemoSize,
		Metrics:  collectors,
		Logger:   logger,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("runtimeviewer listening", zap.String("addr", cfg.Address))
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
