package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// LedgerRepository persists committed budget charges. The table is
// append-only; corrections are new entries, never updates.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082502)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS cost_ledger (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	amount_usd NUMERIC(12,6) NOT NULL,
	breakdown JSONB NOT NULL DEFAULT '{}'::jsonb,
	day TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_ledger_day ON cost_ledger(day);
CREATE INDEX IF NOT EXISTS idx_cost_ledger_document_id ON cost_ledger(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Append(ctx context.Context, entry domain.CostLedgerEntry) error {
	breakdownJSON, err := json.Marshal(entry.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO cost_ledger (id, document_id, amount_usd, breakdown, day, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ID, entry.DocumentID, entry.AmountUSD, breakdownJSON, entry.Day, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) SumForDay(ctx context.Context, day string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_usd), 0) FROM cost_ledger WHERE day = $1
`, day).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger for day: %w", err)
	}
	return total, nil
}

func (r *LedgerRepository) Summarize(ctx context.Context, sinceDay string) (domain.CostSummary, error) {
	summary := domain.CostSummary{SinceDay: sinceDay}

	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_usd), 0) FROM cost_ledger WHERE day >= $1
`, sinceDay).Scan(&total)
	if err != nil {
		return domain.CostSummary{}, fmt.Errorf("sum ledger since day: %w", err)
	}
	summary.TotalCostUSD = total.InexactFloat64()

	byModel, err := r.summarizeByModel(ctx, sinceDay)
	if err != nil {
		return domain.CostSummary{}, err
	}
	summary.ByModel = byModel

	byDay, err := r.summarizeByDay(ctx, sinceDay)
	if err != nil {
		return domain.CostSummary{}, err
	}
	summary.ByDay = byDay

	return summary, nil
}

// summarizeByModel expands the per-entry breakdown objects so spend is
// grouped by the model that actually charged it.
func (r *LedgerRepository) summarizeByModel(ctx context.Context, sinceDay string) ([]domain.ModelSpend, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT b.key, SUM((b.value #>> '{}')::numeric), COUNT(*)
FROM cost_ledger, jsonb_each(breakdown) AS b
WHERE day >= $1
GROUP BY b.key
ORDER BY 2 DESC
`, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("summarize by model: %w", err)
	}
	defer rows.Close()

	out := []domain.ModelSpend{}
	for rows.Next() {
		var model string
		var amount decimal.Decimal
		var entries int
		if err := rows.Scan(&model, &amount, &entries); err != nil {
			return nil, fmt.Errorf("scan model spend: %w", err)
		}
		out = append(out, domain.ModelSpend{
			Model:        model,
			TotalCostUSD: amount.InexactFloat64(),
			Entries:      entries,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model spend: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) summarizeByDay(ctx context.Context, sinceDay string) ([]domain.DaySpend, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT day, SUM(amount_usd), COUNT(*)
FROM cost_ledger
WHERE day >= $1
GROUP BY day
ORDER BY day DESC
`, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("summarize by day: %w", err)
	}
	defer rows.Close()

	out := []domain.DaySpend{}
	for rows.Next() {
		var day string
		var amount decimal.Decimal
		var entries int
		if err := rows.Scan(&day, &amount, &entries); err != nil {
			return nil, fmt.Errorf("scan day spend: %w", err)
		}
		out = append(out, domain.DaySpend{
			Day:          day,
			TotalCostUSD: amount.InexactFloat64(),
			Entries:      entries,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day spend: %w", err)
	}
	return out, nil
}
