package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
)

// DefaultReservationTTL bounds how long an unsettled reservation may hold
// budget before the sweeper reclaims it. Conservative fixed value; a run
// that legitimately outlives it has already tripped the watchdog.
const DefaultReservationTTL = 10 * time.Minute

const sweepInterval = time.Minute

// Guard is the single serialization point for spend against the rolling
// daily ceiling. Reserve atomically checks
//
//	committed(today) + outstanding + estimate <= ceiling
//
// under one mutex, reading the committed sum from the append-only ledger so
// the ceiling survives process restarts. Settle converts a reservation into
// an immutable ledger entry at actual cost; Release discards it unchanged.
type Guard struct {
	ledger  ports.LedgerStore
	ceiling decimal.Decimal
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	outstanding map[string]domain.Reservation
	onSettle    func(model string, amount decimal.Decimal)
}

// OnSettle registers an observer invoked with each committed breakdown line.
// Set it before the guard starts serving reservations.
func (g *Guard) OnSettle(fn func(model string, amount decimal.Decimal)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSettle = fn
}

func NewGuard(ledger ports.LedgerStore, ceilingUSD decimal.Decimal, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		ledger:      ledger,
		ceiling:     ceilingUSD,
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
		outstanding: make(map[string]domain.Reservation),
	}
}

func (g *Guard) Reserve(ctx context.Context, documentID string, estimate decimal.Decimal) (domain.Reservation, error) {
	if estimate.IsNegative() {
		return domain.Reservation{}, domain.WrapError(domain.ErrInvalidInput, "reserve budget", fmt.Errorf("negative estimate %s", estimate))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()

	now := g.now()
	committed, err := g.ledger.SumForDay(ctx, domain.LedgerDay(now))
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("read committed spend: %w", err)
	}

	projected := committed.Add(g.outstandingTotalLocked()).Add(estimate)
	if projected.GreaterThan(g.ceiling) {
		return domain.Reservation{}, domain.WrapError(
			domain.ErrBudgetExceeded,
			"reserve budget",
			fmt.Errorf("projected spend $%s exceeds daily ceiling $%s", projected.StringFixed(4), g.ceiling.StringFixed(2)),
		)
	}

	res := domain.Reservation{
		Token:      uuid.NewString(),
		DocumentID: documentID,
		AmountUSD:  estimate,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.ttl),
	}
	g.outstanding[res.Token] = res
	return res, nil
}

// Settle commits the reservation at actual measured cost, which may differ
// from the estimate in either direction: spend already incurred is recorded
// even when it overshoots.
func (g *Guard) Settle(ctx context.Context, res domain.Reservation, actual decimal.Decimal, breakdown map[string]decimal.Decimal) error {
	now := g.now()
	entry := domain.CostLedgerEntry{
		ID:         uuid.NewString(),
		DocumentID: res.DocumentID,
		AmountUSD:  actual,
		Breakdown:  breakdown,
		Day:        domain.LedgerDay(now),
		CreatedAt:  now,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	delete(g.outstanding, res.Token)
	if g.onSettle != nil {
		for model, amount := range breakdown {
			g.onSettle(model, amount)
		}
	}
	return nil
}

// Release discards a reservation without committing any spend.
func (g *Guard) Release(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.outstanding, token)
}

// Remaining reports ceiling minus committed and outstanding spend for the
// current UTC day. Advisory: it takes the same lock as Reserve but the
// answer is stale the moment it is returned.
func (g *Guard) Remaining(ctx context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()

	committed, err := g.ledger.SumForDay(ctx, domain.LedgerDay(g.now()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read committed spend: %w", err)
	}
	remaining := g.ceiling.Sub(committed).Sub(g.outstandingTotalLocked())
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, nil
}

// RunSweeper periodically reclaims abandoned reservations until ctx ends.
func (g *Guard) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			g.expireLocked()
			g.mu.Unlock()
		}
	}
}

func (g *Guard) outstandingTotalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, res := range g.outstanding {
		total = total.Add(res.AmountUSD)
	}
	return total
}

func (g *Guard) expireLocked() {
	now := g.now()
	for token, res := range g.outstanding {
		if now.After(res.ExpiresAt) {
			delete(g.outstanding, token)
			g.logger.Warn("budget_reservation_expired",
				"document_id", res.DocumentID,
				"amount_usd", res.AmountUSD.StringFixed(4),
				"held_for", now.Sub(res.CreatedAt).String(),
			)
		}
	}
}
