package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

type fakeLedger struct {
	mu      sync.Mutex
	entries []domain.CostLedgerEntry
}

func (f *fakeLedger) Append(_ context.Context, entry domain.CostLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) SumForDay(_ context.Context, day string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := decimal.Zero
	for _, entry := range f.entries {
		if entry.Day == day {
			total = total.Add(entry.AmountUSD)
		}
	}
	return total, nil
}

func (f *fakeLedger) Summarize(_ context.Context, sinceDay string) (domain.CostSummary, error) {
	return domain.CostSummary{SinceDay: sinceDay}, nil
}

func usd(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReserveWithinCeiling(t *testing.T) {
	guard := NewGuard(&fakeLedger{}, usd("1.00"), time.Minute, nil)

	res, err := guard.Reserve(context.Background(), "doc-1", usd("0.40"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a reservation token")
	}
	if !res.AmountUSD.Equal(usd("0.40")) {
		t.Fatalf("expected reserved amount 0.40, got %s", res.AmountUSD)
	}
}

func TestReserveCountsCommittedAndOutstanding(t *testing.T) {
	ledger := &fakeLedger{}
	guard := NewGuard(ledger, usd("1.00"), time.Minute, nil)
	ctx := context.Background()

	ledger.entries = append(ledger.entries, domain.CostLedgerEntry{
		AmountUSD: usd("0.50"),
		Day:       domain.LedgerDay(time.Now()),
	})
	if _, err := guard.Reserve(ctx, "doc-1", usd("0.30")); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	if _, err := guard.Reserve(ctx, "doc-2", usd("0.25")); !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	// Exactly hitting the ceiling is admissible.
	if _, err := guard.Reserve(ctx, "doc-3", usd("0.20")); err != nil {
		t.Fatalf("reserve at exact ceiling failed: %v", err)
	}
}

func TestSettleCommitsActualCost(t *testing.T) {
	ledger := &fakeLedger{}
	guard := NewGuard(ledger, usd("1.00"), time.Minute, nil)
	ctx := context.Background()

	var observed []string
	guard.OnSettle(func(model string, _ decimal.Decimal) {
		observed = append(observed, model)
	})

	res, err := guard.Reserve(ctx, "doc-1", usd("0.40"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Actual spend overshoots the estimate; it is still recorded.
	actual := usd("0.55")
	breakdown := map[string]decimal.Decimal{"claude-3-5-haiku-20241022": actual}
	if err := guard.Settle(ctx, res, actual, breakdown); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if len(ledger.entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(ledger.entries))
	}
	if !ledger.entries[0].AmountUSD.Equal(actual) {
		t.Fatalf("expected committed amount %s, got %s", actual, ledger.entries[0].AmountUSD)
	}
	if len(observed) != 1 || observed[0] != "claude-3-5-haiku-20241022" {
		t.Fatalf("expected settle observer call for model, got %v", observed)
	}

	remaining, err := guard.Remaining(ctx)
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if !remaining.Equal(usd("0.45")) {
		t.Fatalf("expected remaining 0.45 after settle, got %s", remaining)
	}
}

func TestReleaseFreesReservation(t *testing.T) {
	guard := NewGuard(&fakeLedger{}, usd("0.50"), time.Minute, nil)
	ctx := context.Background()

	res, err := guard.Reserve(ctx, "doc-1", usd("0.50"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := guard.Reserve(ctx, "doc-2", usd("0.10")); !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded while held, got %v", err)
	}

	guard.Release(res.Token)
	if _, err := guard.Reserve(ctx, "doc-2", usd("0.10")); err != nil {
		t.Fatalf("reserve after release failed: %v", err)
	}
}

func TestExpiredReservationsAreReclaimed(t *testing.T) {
	guard := NewGuard(&fakeLedger{}, usd("0.50"), 10*time.Minute, nil)
	ctx := context.Background()

	current := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }

	if _, err := guard.Reserve(ctx, "doc-1", usd("0.50")); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := guard.Reserve(ctx, "doc-2", usd("0.10")); !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded before expiry, got %v", err)
	}

	current = current.Add(11 * time.Minute)
	if _, err := guard.Reserve(ctx, "doc-2", usd("0.10")); err != nil {
		t.Fatalf("reserve after expiry failed: %v", err)
	}
}

func TestConcurrentReservesNeverExceedCeiling(t *testing.T) {
	guard := NewGuard(&fakeLedger{}, usd("0.05"), time.Minute, nil)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.Reserve(ctx, "doc", usd("0.013"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
		} else if !domain.IsKind(err, domain.ErrBudgetExceeded) {
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	// 3 x 0.013 = 0.039 fits; a fourth would project 0.052 > 0.05.
	if admitted != 3 {
		t.Fatalf("expected exactly 3 admitted reservations, got %d", admitted)
	}
}

func TestReserveRejectsNegativeEstimate(t *testing.T) {
	guard := NewGuard(&fakeLedger{}, usd("1.00"), time.Minute, nil)
	if _, err := guard.Reserve(context.Background(), "doc-1", usd("-0.01")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
