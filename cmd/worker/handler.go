package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
	"github.com/lexflow/case-analysis/internal/observability/metrics"
)

// analysisHandler builds the queue callback. The subscription delivers
// messages from a single goroutine, so running the pipeline inline would
// serialize every document; instead the callback takes a permit and hands
// the run to its own goroutine. The blocking acquire is the backpressure:
// once every permit is held, delivery pauses until a run finishes.
func analysisHandler(
	sem *semaphore.Weighted,
	analyzer ports.DocumentAnalyzer,
	workerMetrics *metrics.WorkerMetrics,
	logger *slog.Logger,
) func(context.Context, domain.AnalysisRequest) error {
	return func(ctx context.Context, req domain.AnalysisRequest) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer sem.Release(1)

			// Detached from the subscription context so a shutdown drains
			// in-flight runs instead of aborting them mid model call.
			runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyzeRunTimeout)
			defer cancel()

			start := time.Now()
			workerMetrics.StartAnalysis()
			err := analyzer.AnalyzeByID(runCtx, req.DocumentID, req.ForceReanalyze)
			workerMetrics.FinishAnalysis("worker", time.Since(start), err)
			if err != nil {
				logger.Error("analysis run failed",
					"document_id", req.DocumentID,
					"error", err.Error())
			}
		}()
		return nil
	}
}
