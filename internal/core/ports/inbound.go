package ports

import (
	"context"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// DocumentAnalyzer is the inbound contract for one document's analysis run.
type DocumentAnalyzer interface {
	AnalyzeByID(ctx context.Context, documentID string, force bool) error
	Cancel(ctx context.Context, documentID string) error
}

// BulkCoordinator estimates and schedules analysis across a document set.
type BulkCoordinator interface {
	EstimateCost(ctx context.Context, documentIDs []string) (domain.BulkEstimate, error)
	Submit(ctx context.Context, documentIDs []string, force bool) ([]domain.BulkOutcome, error)
}

// DocumentReader is the inbound read model for polling analysis state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
