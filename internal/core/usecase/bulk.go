package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
)

// estimatedSecondsPerDocument is the advisory wall-clock figure reported to
// callers; actual duration depends on worker concurrency and model latency.
const estimatedSecondsPerDocument = 30

// BulkAnalysisUseCase estimates and schedules analysis across a case's
// documents. The estimate is advisory only; admission control stays with the
// cost guard at the moment each document's run actually starts.
type BulkAnalysisUseCase struct {
	repo   ports.DocumentRepository
	guard  ports.CostGuard
	queue  ports.MessageQueue
	logger *slog.Logger
}

func NewBulkAnalysisUseCase(
	repo ports.DocumentRepository,
	guard ports.CostGuard,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *BulkAnalysisUseCase {
	return &BulkAnalysisUseCase{
		repo:   repo,
		guard:  guard,
		queue:  queue,
		logger: logger,
	}
}

func (uc *BulkAnalysisUseCase) EstimateCost(ctx context.Context, documentIDs []string) (domain.BulkEstimate, error) {
	total := decimal.Zero
	counted := 0
	for _, id := range documentIDs {
		doc, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			if domain.IsKind(err, domain.ErrDocumentNotFound) {
				continue
			}
			return domain.BulkEstimate{}, fmt.Errorf("fetch document %s: %w", id, err)
		}
		total = total.Add(EstimateDocumentCost(doc))
		counted++
	}

	remaining, err := uc.guard.Remaining(ctx)
	if err != nil {
		return domain.BulkEstimate{}, fmt.Errorf("read remaining budget: %w", err)
	}

	return domain.BulkEstimate{
		TotalDocuments:       counted,
		EstimatedCostUSD:     total.InexactFloat64(),
		EstimatedTimeSeconds: counted * estimatedSecondsPerDocument,
		WithinBudget:         total.LessThanOrEqual(remaining),
		RemainingBudgetUSD:   remaining.InexactFloat64(),
	}, nil
}

// submitFanOut bounds how many documents are checked and queued at once.
const submitFanOut = 8

// Submit queues each eligible document individually. One document's problem
// never blocks its siblings; every input id gets an outcome back, in input
// order.
func (uc *BulkAnalysisUseCase) Submit(ctx context.Context, documentIDs []string, force bool) ([]domain.BulkOutcome, error) {
	outcomes := make([]domain.BulkOutcome, len(documentIDs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(submitFanOut)
	for i, id := range documentIDs {
		group.Go(func() error {
			outcomes[i] = uc.submitOne(groupCtx, id, force)
			return nil
		})
	}
	// Workers never return errors; outcomes carry per-document failures.
	_ = group.Wait()

	return outcomes, nil
}

func (uc *BulkAnalysisUseCase) submitOne(ctx context.Context, documentID string, force bool) domain.BulkOutcome {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeNotFound}
		}
		return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeError, Detail: err.Error()}
	}

	if !domain.CanStartAnalysis(doc.Status, force) {
		detail := "analysis already in progress"
		if doc.Status == domain.StatusAnalysisComplete {
			detail = "already analyzed; use force_reanalyze to repeat"
		}
		return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeSkipped, Detail: detail}
	}

	// Reject documents the budget clearly cannot cover before they take a
	// queue slot. The guard still decides admission when the run starts.
	estimate := EstimateDocumentCost(doc)
	remaining, err := uc.guard.Remaining(ctx)
	if err != nil {
		return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeError, Detail: err.Error()}
	}
	if estimate.GreaterThan(remaining) {
		return domain.BulkOutcome{
			DocumentID: documentID,
			Outcome:    domain.BulkOutcomeRejected,
			Detail: fmt.Sprintf("estimated $%s exceeds remaining $%s of today's budget",
				estimate.StringFixed(4), remaining.StringFixed(4)),
		}
	}

	req := domain.AnalysisRequest{DocumentID: documentID, ForceReanalyze: force}
	if err := uc.queue.PublishAnalysisRequested(ctx, req); err != nil {
		uc.logger.Error("publish analysis request",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
		return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeError, Detail: err.Error()}
	}
	return domain.BulkOutcome{DocumentID: documentID, Outcome: domain.BulkOutcomeQueued}
}
