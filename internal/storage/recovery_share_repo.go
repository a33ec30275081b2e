package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecoveryShare is one Shamir share of a wallet's seed, encrypted by the
// seed vault before it reaches this layer.
type RecoveryShare struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	ShareIndex    int
	BlobEncrypted []byte
	CreatedAt     time.Time
}

// RecoveryShareRepository handles recovery share persistence
type RecoveryShareRepository struct {
	store *Store
}

// NewRecoveryShareRepository creates a new repository
func NewRecoveryShareRepository(store *Store) *RecoveryShareRepository {
	return &RecoveryShareRepository{store: store}
}

// Create inserts a recovery share
func (r *RecoveryShareRepository) Create(ctx context.Context, share *RecoveryShare) error {
	query := `
		INSERT INTO recovery_shares (id, wallet_id, share_index, blob_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.store.pool.Exec(ctx, query,
		share.ID, share.WalletID, share.ShareIndex, share.BlobEncrypted, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create recovery share: %w", err)
	}

	return nil
}

// GetByWalletID retrieves all recovery shares for a wallet
func (r *RecoveryShareRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID) ([]*RecoveryShare, error) {
	query := `
		SELECT id, wallet_id, share_index, blob_encrypted, created_at
		FROM recovery_shares
		WHERE wallet_id = $1
		ORDER BY share_index
	`

	rows, err := r.store.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery shares: %w", err)
	}
	defer rows.Close()

	var shares []*RecoveryShare
	for rows.Next() {
		share := &RecoveryShare{}
		if err := rows.Scan(&share.ID, &share.WalletID, &share.ShareIndex,
			&share.BlobEncrypted, &share.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery share: %w", err)
		}
		shares = append(shares, share)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recovery share rows error: %w", err)
	}

	return shares, nil
}
