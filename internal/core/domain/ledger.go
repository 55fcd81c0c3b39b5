package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerDayFormat keys ledger entries by UTC calendar day.
const LedgerDayFormat = "2006-01-02"

func LedgerDay(t time.Time) string {
	return t.UTC().Format(LedgerDayFormat)
}

// CostLedgerEntry is one committed charge against the daily budget.
// Entries are append-only and immutable once committed; the sum of entries
// for a UTC day never exceeds the configured ceiling.
type CostLedgerEntry struct {
	ID         string
	DocumentID string
	AmountUSD  decimal.Decimal
	Breakdown  map[string]decimal.Decimal
	Day        string
	CreatedAt  time.Time
}

// Reservation is a provisional hold against the daily budget, convertible
// to a committed ledger entry (settle) or releasable without charge.
type Reservation struct {
	Token      string
	DocumentID string
	AmountUSD  decimal.Decimal
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type ModelSpend struct {
	Model        string  `json:"model"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Entries      int     `json:"entries"`
}

type DaySpend struct {
	Day          string  `json:"day"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Entries      int     `json:"entries"`
}

// CostSummary aggregates ledger history for the admin cost report.
type CostSummary struct {
	SinceDay     string       `json:"since_day"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	ByModel      []ModelSpend `json:"by_model"`
	ByDay        []DaySpend   `json:"by_day"`
}
