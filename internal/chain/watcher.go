package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// PendingStore is the activity persistence the watcher needs: listing
// in-flight records and flipping their status.
type PendingStore interface {
	ListPending(ctx context.Context, limit int) ([]*types.ActivityRecord, error)
	UpdateStatus(ctx context.Context, hash string, status types.ActivityStatus) error
}

// sweepBatch caps how many pending records one sweep inspects.
const sweepBatch = 200

// Publisher receives the updated record after a status flip.
type Publisher interface {
	Publish(rec *types.ActivityRecord)
}

// Watcher polls upstream nodes for the fate of pending transactions and
// flips each record to confirmed or failed exactly once, publishing the
// change. Records are never deleted and never move out of a terminal
// status.
type Watcher struct {
	registry  *Registry
	store     PendingStore
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
}

// NewWatcher creates a confirmation watcher polling at the given interval.
func NewWatcher(registry *Registry, store PendingStore, publisher Publisher, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		registry:  registry,
		store:     store,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep checks every pending record once. Upstream failures leave the
// record pending for the next sweep.
func (w *Watcher) Sweep(ctx context.Context) {
	pending, err := w.store.ListPending(ctx, sweepBatch)
	if err != nil {
		w.logger.Error("failed to list pending activities", "error", err)
		return
	}

	for _, rec := range pending {
		client, err := w.registry.ForChain(rec.Chain)
		if err != nil {
			w.logger.Error("pending activity on unsupported chain", "hash", rec.Hash, "chain", rec.Chain)
			continue
		}

		status, err := client.TransactionStatus(ctx, rec.Hash)
		if err != nil {
			w.logger.Warn("failed to check transaction status", "error", err, "hash", rec.Hash)
			continue
		}
		if status == types.StatusPending {
			continue
		}

		if err := w.store.UpdateStatus(ctx, rec.Hash, status); err != nil {
			w.logger.Error("failed to update activity status", "error", err, "hash", rec.Hash)
			continue
		}

		updated := *rec
		updated.Status = status
		w.publisher.Publish(&updated)
		w.logger.Info("transaction status updated", "hash", rec.Hash, "status", status)
	}
}
