package domain

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Extraction quality routing thresholds. Below QualityPoorCeiling the
// document is routed to poor_quality and no model call is made.
const (
	QualityPoorCeiling = 0.3
	QualityGoodFloor   = 0.7
)

// MaxAnalysisBytes caps the text handed to the model orchestrator, measured
// in bytes of UTF-8. Truncation never splits a rune and is recorded in the
// extraction metadata, never silent.
const MaxAnalysisBytes = 100_000

// TruncateText cuts s at the byte limit without splitting a rune. The
// second return reports whether anything was cut.
func TruncateText(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut, true
}

type Extraction struct {
	Text string `json:"text"`
	// TextLength is the byte length of Text after any truncation.
	TextLength int `json:"text_length"`
	QualityScore float64   `json:"quality_score"`
	Method       string    `json:"method"`
	Truncated    bool      `json:"truncated"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

type Analysis struct {
	Summary        string   `json:"summary"`
	Classification string   `json:"classification"`
	Confidence     float64  `json:"confidence"`
	KeyPoints      []string `json:"key_points"`
	Model          string   `json:"model"`
}

type Person struct {
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
	// Quote is the verbatim source passage the model cited for this person.
	Quote               string `json:"quote,omitempty"`
	RequiresHumanReview bool   `json:"requires_human_review,omitempty"`
}

type Entities struct {
	People        []Person `json:"people"`
	Dates         []string `json:"dates"`
	Locations     []string `json:"locations"`
	CaseNumbers   []string `json:"case_numbers"`
	Organizations []string `json:"organizations"`
	Model         string   `json:"model"`
	// FallbackReason is set when the model answered but its response could
	// not be parsed, so the entity set degraded to empty.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

type ProcessingInfo struct {
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMS   int64     `json:"duration_ms"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	Error        *string   `json:"error"`
	Cancelled    bool      `json:"cancelled,omitempty"`
}

// AnalysisResult is the durable output of one analysis run, embedded in the
// document record. Analysis is present only when the extraction quality
// score reached QualityPoorCeiling; Entities may be absent even then,
// because secondary-model failure is non-fatal.
type AnalysisResult struct {
	Extraction Extraction     `json:"extraction"`
	Analysis   *Analysis      `json:"analysis"`
	Entities   *Entities      `json:"entities"`
	Processing ProcessingInfo `json:"processing"`
}

// ModelOutput is what one orchestrated analysis run produced, before the
// result is assembled and committed. TotalCost covers every attempt that
// incurred spend, including failed ones.
type ModelOutput struct {
	Analysis  Analysis
	Entities  *Entities
	TotalCost decimal.Decimal
	Breakdown map[string]decimal.Decimal
}

// AddSpend records cost against a model key and the run total. Zero-cost
// entries are skipped so the breakdown only lists models that charged.
func (out *ModelOutput) AddSpend(model string, cost decimal.Decimal) {
	if !cost.IsPositive() {
		return
	}
	if out.Breakdown == nil {
		out.Breakdown = map[string]decimal.Decimal{}
	}
	out.Breakdown[model] = out.Breakdown[model].Add(cost)
	out.TotalCost = out.TotalCost.Add(cost)
}
