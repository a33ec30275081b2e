package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// SessionRepository handles session persistence
type SessionRepository struct {
	store *Store
}

// NewSessionRepository creates a new repository
func NewSessionRepository(store *Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create inserts a new session record
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	query := `
		INSERT INTO sessions (id, address, chain_id, origin, created_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.store.pool.Exec(ctx, query,
		s.ID, s.Address, s.ChainID, s.Origin, s.CreatedAt, s.LastAccessedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its token. Returns nil when not found.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	query := `
		SELECT id, address, chain_id, origin, created_at, last_accessed_at
		FROM sessions
		WHERE id = $1
	`

	s := &types.Session{}
	err := r.store.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Address, &s.ChainID, &s.Origin, &s.CreatedAt, &s.LastAccessedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// Touch updates last_accessed_at. The write is synchronous: callers must
// not report the session valid until it returns.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET last_accessed_at = $2 WHERE id = $1`

	_, err := r.store.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// Delete removes a session record
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// DeleteExpired evicts every session created before the cutoff. Returns the
// number of evicted sessions.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.store.pool.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
