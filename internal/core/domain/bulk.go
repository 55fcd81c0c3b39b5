package domain

// AnalysisRequest is the queue payload that asks the worker pool to run one
// document's analysis.
type AnalysisRequest struct {
	DocumentID     string `json:"document_id"`
	ForceReanalyze bool   `json:"force_reanalyze"`
}

type BulkEstimate struct {
	TotalDocuments       int     `json:"total_documents"`
	EstimatedCostUSD     float64 `json:"estimated_cost_usd"`
	EstimatedTimeSeconds int     `json:"estimated_time_seconds"`
	WithinBudget         bool    `json:"within_budget"`
	RemainingBudgetUSD   float64 `json:"remaining_budget_usd"`
}

const (
	BulkOutcomeQueued   = "queued"
	BulkOutcomeSkipped  = "skipped"
	BulkOutcomeRejected = "rejected"
	BulkOutcomeNotFound = "not_found"
	BulkOutcomeError    = "error"
)

// BulkOutcome is one document's result from a bulk submission. Partial
// success is the expected common case; one document never blocks siblings.
type BulkOutcome struct {
	DocumentID string `json:"document_id"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
}
