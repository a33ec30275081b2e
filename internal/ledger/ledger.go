// Package ledger answers "how much has this identity spent in the last
// 24h/7d/30d". The windows are derived from the activity audit trail at
// decision time; the ledger itself is not authoritative, the policy
// snapshot's limits are enforced against it.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ward-wallet/ward-wallet/internal/policy"
)

// SpendReader totals outgoing value for an identity since a cutoff.
// *storage.ActivityRepository implements it.
type SpendReader interface {
	SumSpentSince(ctx context.Context, address string, since time.Time) (*big.Float, error)
}

// Ledger computes sliding-window spend aggregations.
type Ledger struct {
	reader SpendReader
}

// New creates a ledger over the given spend reader.
func New(reader SpendReader) *Ledger {
	return &Ledger{reader: reader}
}

// Windows computes the rolling 24h, 7d, and 30d spend for an identity as of
// now. Callers must hold the per-identity critical section between reading
// the windows and appending the authorized transaction, or two concurrent
// transactions could both pass a limit check against the same stale sums.
func (l *Ledger) Windows(ctx context.Context, address string, now time.Time) (*policy.LedgerWindows, error) {
	daily, err := l.reader.SumSpentSince(ctx, address, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily window: %w", err)
	}

	weekly, err := l.reader.SumSpentSince(ctx, address, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to compute weekly window: %w", err)
	}

	monthly, err := l.reader.SumSpentSince(ctx, address, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly window: %w", err)
	}

	return &policy.LedgerWindows{
		Daily:   daily,
		Weekly:  weekly,
		Monthly: monthly,
	}, nil
}
