// Package main provides the deepresearch server: the HTTP API, the job
// scheduler, and the research pipeline behind it.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/config"
	"github.com/raphaelgruber/deepresearch/internal/extract"
	"github.com/raphaelgruber/deepresearch/internal/llm"
	"github.com/raphaelgruber/deepresearch/internal/metrics"
	"github.com/raphaelgruber/deepresearch/internal/pipeline"
	"github.com/raphaelgruber/deepresearch/internal/scheduler"
	"github.com/raphaelgruber/deepresearch/internal/search"
	"github.com/raphaelgruber/deepresearch/internal/server"
	"github.com/raphaelgruber/deepresearch/internal/service"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg)
	defer closeLog()

	logger.Info("starting deepresearch-server",
		"addr", cfg.ListenAddr,
		"store", cfg.StoreBackend,
		"llm_provider", cfg.LLMProvider,
		"workers", cfg.Workers)

	backing, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	watched := store.Watch(backing)

	model, err := llm.NewModel(cfg)
	if err != nil {
		logger.Error("failed to create LLM model", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	expander, searcher, processor, synthesizer := pipeline.Instrument(
		collector,
		llm.NewExpander(model, 0),
		search.NewScholar(cfg.SearchBaseURL),
		extract.New(),
		llm.NewSynthesizer(model),
	)

	executor := pipeline.NewExecutor(watched, expander, searcher, processor, synthesizer, pipeline.Config{
		SearchLimit: cfg.SearchLimit,
	})

	sched := scheduler.New(watched, executor, scheduler.Config{
		Workers:           cfg.Workers,
		MaxAttempts:       cfg.MaxAttempts,
		InitialBackoff:    cfg.InitialBackoff.Std(),
		BackoffMultiplier: cfg.BackoffMultiplier,
		JobBudget:         cfg.JobBudget.Std(),
	}, logger)
	sched.Start()

	research := service.New(watched, sched, logger)
	srv := server.New(cfg.ListenAddr, research, watched, collector, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := sched.Stop(ctx); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured job store backend.
func openStore(cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreSurreal:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := store.NewSurreal(ctx, store.SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(context.Background()); err != nil {
				logger.Warn("failed to close store", "error", err)
			}
		}, nil

	default:
		return store.NewMemory(), func() {}, nil
	}
}
