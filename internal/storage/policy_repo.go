package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// PolicyRepository persists one policy snapshot per wallet identity. The
// snapshot body is stored as JSONB so limit and allow-list shapes can evolve
// without migrations.
type PolicyRepository struct {
	store *Store
}

// NewPolicyRepository creates a new repository
func NewPolicyRepository(store *Store) *PolicyRepository {
	return &PolicyRepository{store: store}
}

// Upsert replaces the policy snapshot for a wallet identity
func (r *PolicyRepository) Upsert(ctx context.Context, policy *types.PolicySnapshot) error {
	body, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	query := `
		INSERT INTO policies (wallet_address, snapshot, updated_at)
		VALUES (lower($1), $2, $3)
		ON CONFLICT (wallet_address)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`

	_, err = r.store.pool.Exec(ctx, query, policy.WalletAddress, body, policy.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}

	return nil
}

// GetByWalletAddress retrieves the policy snapshot for a wallet identity.
// Returns nil when no policy is configured.
func (r *PolicyRepository) GetByWalletAddress(ctx context.Context, address string) (*types.PolicySnapshot, error) {
	query := `SELECT snapshot, updated_at FROM policies WHERE wallet_address = lower($1)`

	var (
		body      []byte
		updatedAt time.Time
	)
	err := r.store.pool.QueryRow(ctx, query, address).Scan(&body, &updatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	policy := &types.PolicySnapshot{}
	if err := json.Unmarshal(body, policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	policy.UpdatedAt = updatedAt

	return policy, nil
}
