package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// AuditRepository records document lifecycle events, append-only.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082503)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_document_id ON audit_log(document_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_log (id, document_id, event_type, detail, created_at)
VALUES ($1,$2,$3,$4,$5)
`, event.ID, event.DocumentID, string(event.EventType), event.Detail, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, event_type, detail, created_at
FROM audit_log
WHERE document_id = $1
ORDER BY created_at
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var eventType string
		if err := rows.Scan(&event.ID, &event.DocumentID, &eventType, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.EventType = domain.AuditEventType(eventType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
