package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acheong08/sentinel/internal/analysis"
	"github.com/acheong08/sentinel/internal/config"
	"github.com/acheong08/sentinel/internal/metrics"
	"github.com/acheong08/sentinel/internal/registry"
	"github.com/acheong08/sentinel/internal/server"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	config.InitLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	opts := cfg.ScanOptions()
	opts.Metrics = m

	handler := server.NewHandler(opts, nil)
	if cfg.ReviewEnabled() {
		pypi := registry.NewClient(cfg.PyPIURL)
		pypi.HTTPClient.Timeout = cfg.Timeout
		reviewer, err := analysis.NewReviewer(ctx, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, analysis.DefaultConcurrency, pypi)
		if err != nil {
			slog.Warn("AI review disabled", "err", err)
		} else {
			handler.Reviewer = reviewer
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewMux(handler, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "port", cfg.Port, "review", handler.Reviewer != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
