package domain

import "time"

type AuditEventType string

const (
	AuditAnalysisStarted   AuditEventType = "AnalysisStarted"
	AuditTextExtracted     AuditEventType = "TextExtracted"
	AuditAnalysisCompleted AuditEventType = "AnalysisCompleted"
	AuditAnalysisFailed    AuditEventType = "AnalysisFailed"
	AuditAnalysisCancelled AuditEventType = "AnalysisCancelled"
	AuditBudgetRejected    AuditEventType = "BudgetRejected"
)

// AuditEvent is an immutable record of a state transition or pipeline
// action, keyed by document id and ordered by occurrence time.
type AuditEvent struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	EventType  AuditEventType `json:"event_type"`
	Detail     string         `json:"detail"`
	CreatedAt  time.Time      `json:"created_at"`
}
