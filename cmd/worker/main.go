package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/lexflow/case-analysis/internal/bootstrap"
	"github.com/lexflow/case-analysis/internal/config"
	"github.com/lexflow/case-analysis/internal/observability/logging"
	"github.com/lexflow/case-analysis/internal/observability/metrics"
)

const analyzeRunTimeout = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.Guard.OnSettle(func(model string, amount decimal.Decimal) {
		workerMetrics.RecordSpend("worker", model, amount)
	})

	go app.Guard.RunSweeper(ctx)
	go runWatchdog(ctx, app, logger, workerMetrics, cfg.AnalyzeWatchdogMinutes)
	go serveMetrics(ctx, workerMetrics, cfg.WorkerMetricsPort, logger)

	maxConcurrency := cfg.AnalyzeMaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	logger.Info("worker subscribed", "subject", cfg.NATSSubject, "max_concurrency", maxConcurrency)
	err = app.Queue.SubscribeAnalysisRequested(ctx, analysisHandler(sem, app.AnalyzeUC, workerMetrics, logger))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker subscribe error: %v", err)
	}

	// Holding every permit means no dispatched run is still going.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), analyzeRunTimeout)
	defer cancelDrain()
	if err := sem.Acquire(drainCtx, int64(maxConcurrency)); err != nil {
		logger.Warn("shutdown drain timed out", "error", err.Error())
	}
}

// runWatchdog alerts on documents stuck in processing past the cutoff. It
// never force-fails them; a human decides what a stuck run means.
func runWatchdog(ctx context.Context, app *bootstrap.App, logger *slog.Logger, workerMetrics *metrics.WorkerMetrics, watchdogMinutes int) {
	if watchdogMinutes < 1 {
		watchdogMinutes = 30
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(watchdogMinutes) * time.Minute)
			ids, err := app.Repo.ListStuckProcessing(ctx, cutoff)
			if err != nil {
				logger.Warn("watchdog scan failed", "error", err.Error())
				continue
			}
			workerMetrics.SetStuckDocuments(len(ids))
			for _, id := range ids {
				logger.Warn("document stuck in processing",
					"document_id", id,
					"older_than_minutes", watchdogMinutes)
			}
		}
	}
}

func serveMetrics(ctx context.Context, workerMetrics *metrics.WorkerMetrics, port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("worker metrics listening", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics server", "error", err.Error())
	}
}
