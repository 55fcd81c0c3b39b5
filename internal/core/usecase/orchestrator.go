package usecase

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
)

// AnalysisMode selects which model providers a run uses.
type AnalysisMode string

const (
	// ModeHybrid runs the primary analysis plus secondary entity extraction.
	ModeHybrid AnalysisMode = "hybrid"
	// ModePrimaryOnly skips the secondary provider entirely.
	ModePrimaryOnly AnalysisMode = "primary_only"
)

func ParseAnalysisMode(raw string) AnalysisMode {
	if AnalysisMode(raw) == ModePrimaryOnly {
		return ModePrimaryOnly
	}
	return ModeHybrid
}

// ModelOrchestrator coordinates the model calls for one run. The primary
// analyzer is required; the secondary entity extractor is best-effort and
// its failure degrades the result instead of failing the run. Spend is
// accumulated across both providers whether or not the run succeeds.
type ModelOrchestrator struct {
	primary   ports.PrimaryAnalyzer
	secondary ports.EntityExtractor
	mode      AnalysisMode
	logger    *slog.Logger
}

func NewModelOrchestrator(
	primary ports.PrimaryAnalyzer,
	secondary ports.EntityExtractor,
	mode AnalysisMode,
	logger *slog.Logger,
) *ModelOrchestrator {
	if mode != ModePrimaryOnly {
		mode = ModeHybrid
	}
	return &ModelOrchestrator{
		primary:   primary,
		secondary: secondary,
		mode:      mode,
		logger:    logger,
	}
}

func (o *ModelOrchestrator) Run(ctx context.Context, text string) (domain.ModelOutput, error) {
	output := domain.ModelOutput{
		TotalCost: decimal.Zero,
		Breakdown: map[string]decimal.Decimal{},
	}

	analysis, primaryCost, err := o.primary.Analyze(ctx, text)
	output.AddSpend(breakdownKey(analysis.Model, "primary"), primaryCost)
	if err != nil {
		return output, err
	}
	output.Analysis = analysis

	if o.mode != ModeHybrid || o.secondary == nil {
		return output, nil
	}

	entities, secondaryCost, err := o.secondary.ExtractEntities(ctx, text)
	var secondaryModel string
	if entities != nil {
		secondaryModel = entities.Model
	}
	output.AddSpend(breakdownKey(secondaryModel, "secondary"), secondaryCost)
	if err != nil {
		// The primary result stands on its own; entity extraction is a
		// best-effort enrichment.
		o.logger.Warn("secondary entity extraction failed, continuing without entities",
			slog.String("error", err.Error()))
		return output, nil
	}
	output.Entities = entities

	return output, nil
}

func breakdownKey(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
