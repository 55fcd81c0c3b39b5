package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
)

// AnalyzeDocumentUseCase runs the full analysis pipeline for one document:
// budget reservation, processing claim, text extraction, model orchestration,
// citation validation and result commit. Every run ends in exactly one
// terminal status and every reservation is settled or released exactly once.
type AnalyzeDocumentUseCase struct {
	repo         ports.DocumentRepository
	extractor    ports.TextExtractor
	orchestrator *ModelOrchestrator
	guard        ports.CostGuard
	audit        ports.AuditLog
	logger       *slog.Logger
	now          func() time.Time
}

func NewAnalyzeDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	orchestrator *ModelOrchestrator,
	guard ports.CostGuard,
	audit ports.AuditLog,
	logger *slog.Logger,
) *AnalyzeDocumentUseCase {
	return &AnalyzeDocumentUseCase{
		repo:         repo,
		extractor:    extractor,
		orchestrator: orchestrator,
		guard:        guard,
		audit:        audit,
		logger:       logger,
		now:          time.Now,
	}
}

func (uc *AnalyzeDocumentUseCase) AnalyzeByID(ctx context.Context, documentID string, force bool) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	estimate := EstimateDocumentCost(doc)
	reservation, err := uc.guard.Reserve(ctx, documentID, estimate)
	if err != nil {
		if domain.IsKind(err, domain.ErrBudgetExceeded) {
			uc.recordAudit(ctx, documentID, domain.AuditBudgetRejected,
				fmt.Sprintf("estimate %s rejected against daily ceiling", estimate.StringFixed(4)))
		}
		return fmt.Errorf("reserve budget: %w", err)
	}

	if err := uc.repo.ClaimProcessing(ctx, documentID, force); err != nil {
		uc.guard.Release(reservation.Token)
		return fmt.Errorf("claim processing: %w", err)
	}

	uc.recordAudit(ctx, documentID, domain.AuditAnalysisStarted,
		fmt.Sprintf("estimate %s, force=%t", estimate.StringFixed(4), force))

	return uc.runPipeline(ctx, doc, reservation)
}

// Cancel flags a running analysis for cancellation. The worker observes the
// flag at the next stage boundary; model calls already in flight finish and
// their spend is still charged.
func (uc *AnalyzeDocumentUseCase) Cancel(ctx context.Context, documentID string) error {
	if err := uc.repo.RequestCancel(ctx, documentID); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

func (uc *AnalyzeDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document, reservation domain.Reservation) error {
	startedAt := uc.now().UTC()

	extraction, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		uc.guard.Release(reservation.Token)
		return uc.failRun(ctx, doc.ID, startedAt, extraction, err)
	}

	uc.recordAudit(ctx, doc.ID, domain.AuditTextExtracted,
		fmt.Sprintf("method=%s chars=%d quality=%.2f truncated=%t",
			extraction.Method, extraction.TextLength, extraction.QualityScore, extraction.Truncated))

	if cancelled := uc.cancelRequested(ctx, doc.ID); cancelled {
		uc.guard.Release(reservation.Token)
		return uc.cancelRun(ctx, doc.ID, startedAt, extraction, nil)
	}

	if extraction.QualityScore < domain.QualityPoorCeiling {
		uc.guard.Release(reservation.Token)
		return uc.completePoorQuality(ctx, doc.ID, startedAt, extraction)
	}

	output, modelErr := uc.orchestrator.Run(ctx, extraction.Text)
	if err := uc.settleSpend(ctx, reservation, output); err != nil {
		uc.logger.Error("settle model spend",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
	}
	if modelErr != nil {
		return uc.failRunWithCost(ctx, doc.ID, startedAt, extraction, &output, modelErr)
	}

	if cancelled := uc.cancelRequested(ctx, doc.ID); cancelled {
		return uc.cancelRun(ctx, doc.ID, startedAt, extraction, &output)
	}

	flagged := ValidateEntityCitations(output.Entities, extraction.Text)
	if flagged > 0 {
		uc.logger.Warn("entity citations failed validation",
			slog.String("document_id", doc.ID),
			slog.Int("flagged", flagged))
	}

	result := uc.assembleResult(startedAt, extraction, &output, nil, false)
	if err := uc.repo.SaveResult(ctx, doc.ID, domain.StatusAnalysisComplete, result); err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}

	uc.recordAudit(ctx, doc.ID, domain.AuditAnalysisCompleted,
		fmt.Sprintf("classification=%q cost=%s flagged_citations=%d",
			output.Analysis.Classification, output.TotalCost.StringFixed(4), flagged))
	return nil
}

// settleSpend commits whatever the models actually charged. A run with zero
// spend simply releases its reservation.
func (uc *AnalyzeDocumentUseCase) settleSpend(ctx context.Context, reservation domain.Reservation, output domain.ModelOutput) error {
	if !output.TotalCost.IsPositive() {
		uc.guard.Release(reservation.Token)
		return nil
	}
	return uc.guard.Settle(ctx, reservation, output.TotalCost, output.Breakdown)
}

func (uc *AnalyzeDocumentUseCase) completePoorQuality(ctx context.Context, documentID string, startedAt time.Time, extraction domain.Extraction) error {
	result := uc.assembleResult(startedAt, extraction, nil, nil, false)
	if err := uc.repo.SaveResult(ctx, documentID, domain.StatusPoorQuality, result); err != nil {
		return fmt.Errorf("save poor quality result: %w", err)
	}
	uc.recordAudit(ctx, documentID, domain.AuditAnalysisCompleted,
		fmt.Sprintf("routed to poor_quality, score=%.2f below %.2f", extraction.QualityScore, domain.QualityPoorCeiling))
	return nil
}

func (uc *AnalyzeDocumentUseCase) failRun(ctx context.Context, documentID string, startedAt time.Time, extraction domain.Extraction, runErr error) error {
	return uc.failRunWithCost(ctx, documentID, startedAt, extraction, nil, runErr)
}

func (uc *AnalyzeDocumentUseCase) failRunWithCost(ctx context.Context, documentID string, startedAt time.Time, extraction domain.Extraction, output *domain.ModelOutput, runErr error) error {
	message := runErr.Error()
	result := uc.assembleResult(startedAt, extraction, output, &message, false)
	result.Analysis = nil
	result.Entities = nil

	status := domain.TerminalStatusForError(runErr)
	if err := uc.repo.SaveResult(ctx, documentID, status, result); err != nil {
		return fmt.Errorf("%w; save failed status: %v", runErr, err)
	}
	uc.recordAudit(ctx, documentID, domain.AuditAnalysisFailed,
		fmt.Sprintf("status=%s: %s", status, message))
	return runErr
}

func (uc *AnalyzeDocumentUseCase) cancelRun(ctx context.Context, documentID string, startedAt time.Time, extraction domain.Extraction, output *domain.ModelOutput) error {
	message := "analysis cancelled by request"
	result := uc.assembleResult(startedAt, extraction, output, &message, true)
	result.Analysis = nil
	result.Entities = nil

	if err := uc.repo.SaveResult(ctx, documentID, domain.StatusFailed, result); err != nil {
		return fmt.Errorf("save cancelled status: %w", err)
	}
	uc.recordAudit(ctx, documentID, domain.AuditAnalysisCancelled, message)
	return nil
}

func (uc *AnalyzeDocumentUseCase) cancelRequested(ctx context.Context, documentID string) bool {
	cancelled, err := uc.repo.CancelRequested(ctx, documentID)
	if err != nil {
		uc.logger.Warn("read cancel flag",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
		return false
	}
	return cancelled
}

func (uc *AnalyzeDocumentUseCase) assembleResult(startedAt time.Time, extraction domain.Extraction, output *domain.ModelOutput, errMessage *string, cancelled bool) *domain.AnalysisResult {
	completedAt := uc.now().UTC()
	result := &domain.AnalysisResult{
		Extraction: extraction,
		Processing: domain.ProcessingInfo{
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			DurationMS:  completedAt.Sub(startedAt).Milliseconds(),
			Error:       errMessage,
			Cancelled:   cancelled,
		},
	}
	if output != nil {
		result.Analysis = &output.Analysis
		result.Entities = output.Entities
		result.Processing.TotalCostUSD = output.TotalCost.InexactFloat64()
	}
	return result
}

func (uc *AnalyzeDocumentUseCase) recordAudit(ctx context.Context, documentID string, eventType domain.AuditEventType, detail string) {
	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		EventType:  eventType,
		Detail:     detail,
		CreatedAt:  uc.now().UTC(),
	}
	if err := uc.audit.Append(ctx, event); err != nil {
		uc.logger.Warn("append audit event",
			slog.String("document_id", documentID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()))
	}
}
