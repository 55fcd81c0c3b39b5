package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// baseEstimateUSD is the flat per-document estimate used when nothing is
// known about the document's text yet.
var baseEstimateUSD = decimal.NewFromFloat(0.013)

var estimateScaleUnit = decimal.NewFromInt(10_000)

// EstimateDocumentCost predicts the spend one analysis run will incur. When
// a previous run cached an extraction, the flat estimate is scaled by the
// known text length; longer filings cost proportionally more tokens.
func EstimateDocumentCost(doc *domain.Document) decimal.Decimal {
	if doc == nil {
		return baseEstimateUSD
	}
	if doc.Analysis == nil || doc.Analysis.Extraction.TextLength <= 0 {
		return baseEstimateUSD
	}

	scale := decimal.NewFromInt(int64(doc.Analysis.Extraction.TextLength)).Div(estimateScaleUnit)
	if scale.LessThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	return baseEstimateUSD.Mul(scale)
}
