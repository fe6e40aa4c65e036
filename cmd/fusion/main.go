// Command fusion runs the swell fusion service: it assembles collector
// bundles from Kafka, fuses them into confidence-scored forecasts, persists
// and publishes the results, and sweeps eligible forecasts for validation.
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

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/swell-fusion/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/swell-fusion/internal/adapter/kafka"
	"github.com/couchcryptid/swell-fusion/internal/adapter/ndbc"
	"github.com/couchcryptid/swell-fusion/internal/config"
	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/fusion"
	"github.com/couchcryptid/swell-fusion/internal/observability"
	"github.com/couchcryptid/swell-fusion/internal/pipeline"
	"github.com/couchcryptid/swell-fusion/internal/store"
	"github.com/couchcryptid/swell-fusion/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clk := clockwork.NewRealClock()

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	detector := domain.NewDetector(cfg.MinHeightM, cfg.MinPeriodS, cfg.MinSignificance, logger)
	scorer := domain.NewSourceScorer(cfg.TierTable(), cfg.StalenessWindow, logger)
	fuser := fusion.NewFuser(logger)

	p := pipeline.New(reader, writer, db, db, detector, scorer, fuser, domain.DefaultShores,
		clk, logger, metrics, pipeline.Options{
			BatchSize:         cfg.BatchSize,
			BundleQuietPeriod: cfg.BundleQuietPeriod,
			HistoryDays:       cfg.HistoryDays,
		})

	fetcher := ndbc.NewCachedFetcher(ndbc.NewClient(cfg.NDBCTimeout, logger), cfg.NDBCCacheSize)
	validator := validation.New(db, fetcher, domain.DefaultShores, clk, logger, metrics, validation.Options{
		MatchWindow:  cfg.MatchWindow,
		FetchTimeout: cfg.NDBCTimeout,
		Concurrency:  cfg.ValidationConcurrency,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start fusion pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
			stop()
		}
	}()

	// Periodic validation sweep.
	go func() {
		ticker := time.NewTicker(cfg.ValidationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				results, err := validator.ValidateAll(ctx, cfg.ValidateHoursAfter)
				if err != nil {
					logger.Error("validation sweep failed", "error", err)
					continue
				}
				logger.Info("validation sweep complete", "forecasts", len(results))
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
