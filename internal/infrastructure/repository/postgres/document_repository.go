package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	storage_key TEXT NOT NULL,
	status TEXT NOT NULL,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	analysis_result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_case_id ON documents(case_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	resultJSON, err := marshalResult(doc.Analysis)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, case_id, file_type, file_size, storage_key, status, cancel_requested, analysis_result, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.CaseID, doc.FileType, doc.FileSize, doc.StorageKey,
		string(doc.Status), doc.CancelRequested, resultJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, case_id, file_type, file_size, storage_key, status, cancel_requested, analysis_result, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status string
	var resultRaw []byte

	err := row.Scan(
		&doc.ID, &doc.CaseID, &doc.FileType, &doc.FileSize, &doc.StorageKey,
		&status, &doc.CancelRequested, &resultRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if len(resultRaw) > 0 {
		var result domain.AnalysisResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal analysis result: %w", err)
		}
		doc.Analysis = &result
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// ClaimProcessing is the single admission point into the processing status.
// The WHERE clause encodes the lifecycle rule, so concurrent claimers race
// on one conditional UPDATE and at most one of them wins.
func (r *DocumentRepository) ClaimProcessing(ctx context.Context, id string, force bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, cancel_requested = FALSE, updated_at = $3
WHERE id = $1
  AND status <> $2
  AND (status <> $4 OR $5)
`, id, string(domain.StatusProcessing), time.Now().UTC(), string(domain.StatusAnalysisComplete), force)
	if err != nil {
		return fmt.Errorf("claim processing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim processing rows: %w", err)
	}
	if affected == 1 {
		return nil
	}
	return r.claimRejection(ctx, id, force)
}

// claimRejection reads the row once more to say why the claim lost.
func (r *DocumentRepository) claimRejection(ctx context.Context, id string, force bool) error {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case doc.Status == domain.StatusProcessing:
		return domain.WrapError(domain.ErrAlreadyProcessing, "claim processing", fmt.Errorf("document %s", id))
	case doc.Status == domain.StatusAnalysisComplete && !force:
		return domain.WrapError(domain.ErrInvalidInput, "claim processing",
			fmt.Errorf("document %s already analyzed; re-analysis requires force", id))
	default:
		return domain.WrapError(domain.ErrTemporary, "claim processing",
			fmt.Errorf("document %s lost claim race from status %s", id, doc.Status))
	}
}

// SaveResult commits the run's terminal status and replaces the stored
// analysis result wholesale.
func (r *DocumentRepository) SaveResult(ctx context.Context, id string, status domain.DocumentStatus, result *domain.AnalysisResult) error {
	if !status.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "save result", fmt.Errorf("unknown status %q", status))
	}
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, analysis_result = $3, cancel_requested = FALSE, updated_at = $4
WHERE id = $1
`, id, string(status), resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save result rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "save result", fmt.Errorf("id %s", id))
	}
	return nil
}

// RequestCancel flags an active run for cancellation. Only a processing
// document can be flagged; anything else is a caller mistake.
func (r *DocumentRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET cancel_requested = TRUE, updated_at = $2
WHERE id = $1 AND status = $3
`, id, time.Now().UTC(), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("request cancel rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return domain.WrapError(domain.ErrInvalidInput, "request cancel",
		fmt.Errorf("document %s is %s, not processing", id, doc.Status))
}

func (r *DocumentRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := r.db.QueryRowContext(ctx, `
SELECT cancel_requested FROM documents WHERE id = $1
`, id).Scan(&cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.WrapError(domain.ErrDocumentNotFound, "read cancel flag", fmt.Errorf("id %s", id))
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return cancelled, nil
}

// ListStuckProcessing finds runs that have sat in processing since before
// the cutoff; the worker watchdog alerts on them.
func (r *DocumentRepository) ListStuckProcessing(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at
`, string(domain.StatusProcessing), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stuck processing: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stuck id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck ids: %w", err)
	}
	return ids, nil
}

func marshalResult(result *domain.AnalysisResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis result: %w", err)
	}
	return raw, nil
}
