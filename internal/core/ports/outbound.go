package ports

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// DocumentRepository persists and reads document state. The status column
// moves only through ClaimProcessing and SaveResult, so lifecycle rules are
// enforced in exactly one place.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ClaimProcessing atomically transitions the document into processing.
	// It fails with ErrAlreadyProcessing while a run is active and requires
	// the force flag to reclaim an analysis_complete document.
	ClaimProcessing(ctx context.Context, id string, force bool) error
	// SaveResult commits a terminal status together with the replacement
	// AnalysisResult for the run. The previous result is discarded whole.
	SaveResult(ctx context.Context, id string, status domain.DocumentStatus, result *domain.AnalysisResult) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
	// ListStuckProcessing reports runs sitting in processing since before
	// the cutoff so the worker watchdog can raise an operational alert.
	ListStuckProcessing(ctx context.Context, cutoff time.Time) ([]string, error)
}

// LedgerStore persists committed budget charges, append-only.
type LedgerStore interface {
	Append(ctx context.Context, entry domain.CostLedgerEntry) error
	SumForDay(ctx context.Context, day string) (decimal.Decimal, error)
	Summarize(ctx context.Context, sinceDay string) (domain.CostSummary, error)
}

// AuditLog records state transitions and pipeline actions, append-only.
type AuditLog interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.AuditEvent, error)
}

// ObjectStorage reads source documents from the blob store.
type ObjectStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// TextExtractor produces quality-scored plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (domain.Extraction, error)
}

// PrimaryAnalyzer runs the required summarization/classification model call.
// The returned cost covers every attempt that incurred spend, including
// attempts that ultimately failed.
type PrimaryAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.Analysis, decimal.Decimal, error)
}

// EntityExtractor runs the optional structured entity extraction call.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (*domain.Entities, decimal.Decimal, error)
}

// CostGuard admits or rejects spend against the rolling daily ceiling. No
// caller may bypass Reserve to spend directly.
type CostGuard interface {
	Reserve(ctx context.Context, documentID string, estimate decimal.Decimal) (domain.Reservation, error)
	Settle(ctx context.Context, res domain.Reservation, actual decimal.Decimal, breakdown map[string]decimal.Decimal) error
	Release(token string)
	Remaining(ctx context.Context) (decimal.Decimal, error)
}

// MessageQueue carries analysis requests from the API to the worker pool.
type MessageQueue interface {
	PublishAnalysisRequested(ctx context.Context, req domain.AnalysisRequest) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error
}
