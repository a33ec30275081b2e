package storage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// ActivityRepository handles the append-only activity audit trail, keyed
// uniquely by transaction hash. Records are never deleted; only status
// transitions in place.
type ActivityRepository struct {
	store *Store
}

// NewActivityRepository creates a new repository
func NewActivityRepository(store *Store) *ActivityRepository {
	return &ActivityRepository{store: store}
}

// Create appends a new activity record
func (r *ActivityRepository) Create(ctx context.Context, rec *types.ActivityRecord) error {
	query := `
		INSERT INTO activities (hash, type, status, ts, address, chain, value, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var value *string
	if rec.Value != nil {
		v := rec.Value.Text('f', -1)
		value = &v
	}

	_, err := r.store.pool.Exec(ctx, query,
		rec.Hash, string(rec.Type), string(rec.Status), rec.Timestamp,
		rec.Address, string(rec.Chain), value, rec.Details)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}

	return nil
}

// UpdateStatus transitions an activity's status in place
func (r *ActivityRepository) UpdateStatus(ctx context.Context, hash string, status types.ActivityStatus) error {
	query := `UPDATE activities SET status = $2 WHERE hash = $1`

	tag, err := r.store.pool.Exec(ctx, query, hash, string(status))
	if err != nil {
		return fmt.Errorf("failed to update activity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activity not found: %s", hash)
	}

	return nil
}

// GetByHash retrieves an activity record. Returns nil when not found.
func (r *ActivityRepository) GetByHash(ctx context.Context, hash string) (*types.ActivityRecord, error) {
	query := `
		SELECT hash, type, status, ts, address, chain, value, details
		FROM activities
		WHERE hash = $1
	`

	rec, err := scanActivity(r.store.pool.QueryRow(ctx, query, hash))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	return rec, nil
}

// ListByAddress retrieves recent activity for a wallet identity, newest
// first. This feeds both the activity endpoint and INITIAL_DATA seeding.
func (r *ActivityRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*types.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT hash, type, status, ts, address, chain, value, details
		FROM activities
		WHERE lower(address) = lower($1)
		ORDER BY ts DESC
		LIMIT $2
	`

	rows, err := r.store.pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var records []*types.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity rows error: %w", err)
	}

	return records, nil
}

// ListRecent retrieves the newest activity across all wallets, for seeding
// new bus observers.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]*types.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT hash, type, status, ts, address, chain, value, details
		FROM activities
		ORDER BY ts DESC
		LIMIT $1
	`

	rows, err := r.store.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activities: %w", err)
	}
	defer rows.Close()

	var records []*types.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity rows error: %w", err)
	}

	return records, nil
}

// ListPending returns activities still awaiting finality, oldest first, for
// the confirmation watcher.
func (r *ActivityRepository) ListPending(ctx context.Context, limit int) ([]*types.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT hash, type, status, ts, address, chain, value, details
		FROM activities
		WHERE status = 'pending'
		ORDER BY ts ASC
		LIMIT $1
	`

	rows, err := r.store.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending activities: %w", err)
	}
	defer rows.Close()

	var records []*types.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity rows error: %w", err)
	}

	return records, nil
}

// SumSpentSince totals outgoing value for an identity since the cutoff.
// Failed transactions do not count against spending limits.
func (r *ActivityRepository) SumSpentSince(ctx context.Context, address string, since time.Time) (*big.Float, error) {
	query := `
		SELECT COALESCE(SUM(value::numeric), 0)::text
		FROM activities
		WHERE lower(address) = lower($1)
		  AND ts >= $2
		  AND status <> 'failed'
		  AND type IN ('send', 'transfer', 'buy', 'mint')
	`

	var total string
	if err := r.store.pool.QueryRow(ctx, query, address, since).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to sum spending: %w", err)
	}

	sum, _, err := big.ParseFloat(total, 10, 128, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spending sum %q: %w", total, err)
	}

	return sum, nil
}

// scanActivity reads one activity row from a pgx.Row or pgx.Rows.
func scanActivity(row pgx.Row) (*types.ActivityRecord, error) {
	rec := &types.ActivityRecord{}
	var (
		actType string
		status  string
		chain   string
		value   *string
	)

	if err := row.Scan(&rec.Hash, &actType, &status, &rec.Timestamp,
		&rec.Address, &chain, &value, &rec.Details); err != nil {
		return nil, err
	}

	rec.Type = types.ActivityType(actType)
	rec.Status = types.ActivityStatus(status)
	rec.Chain = types.Chain(chain)
	if value != nil {
		v, _, err := big.ParseFloat(*value, 10, 128, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity value %q: %w", *value, err)
		}
		rec.Value = v
	}

	return rec, nil
}
