package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbrowser-ai/opensession/internal/config"
	"github.com/openbrowser-ai/opensession/internal/logger"
	"github.com/openbrowser-ai/opensession/internal/observability"
	"github.com/openbrowser-ai/opensession/internal/tracing"
	"github.com/openbrowser-ai/opensession/pkg/history"
	"github.com/openbrowser-ai/opensession/pkg/ingress"
	"github.com/openbrowser-ai/opensession/pkg/maintenance"
	"github.com/openbrowser-ai/opensession/pkg/pipeline"
	"github.com/openbrowser-ai/opensession/pkg/taskqueue"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the session pipeline service",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:   firstNonEmpty(logLevel, cfg.Log.Level),
		File:    cfg.Log.File,
		Console: true,
		Pretty:  cfg.Log.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	lg.SetGlobal()
	zl := lg.Zerolog()

	if err := tracing.InitOpenTelemetry("opensession"); err != nil {
		zl.Warn().Err(err).Msg("Tracing disabled")
	}

	store, err := history.Open(history.Config{
		Path:        cfg.Storage.Path,
		MaxMessages: cfg.Storage.MaxMessages,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	queue := taskqueue.New(zl)
	messageLog := history.NewMessageLog(store)
	directory := history.NewDirectory(store)

	pipe, err := pipeline.New(pipeline.Config{
		MessageLog: messageLog,
		Directory:  directory,
		Queue:      queue,
		Logger:     zl,
	})
	if err != nil {
		return err
	}

	sweeper, err := maintenance.NewSweeper(maintenance.Config{
		Directory:  directory,
		MessageLog: messageLog,
		Retention:  time.Duration(cfg.Maintenance.RetentionDays) * 24 * time.Hour,
		Schedule:   cfg.Maintenance.Schedule,
		Logger:     zl,
	})
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	secret := cfg.Ingress.SharedSecret
	if secret == "" {
		secret = os.Getenv("OPENSESSION_INGRESS_SHARED_SECRET")
	}
	server, err := ingress.NewServer(ingress.Config{
		Addr:         cfg.Ingress.Addr,
		SharedSecret: secret,
		Pipeline:     pipe,
		Logger:       zl,
	})
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           observability.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			zl.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Ingress shutdown failed")
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Persistence queue drained incompletely")
	}
	if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Tracing shutdown failed")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
