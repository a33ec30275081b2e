package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Wallet is a custodial wallet row. SealedSeed is the seed phrase encrypted
// by the seed vault; plaintext never reaches this layer.
type Wallet struct {
	ID           uuid.UUID
	Chain        types.Chain
	Address      string
	AccountIndex uint32
	SealedSeed   []byte
	CreatedAt    time.Time
}

// WalletRepository handles wallet persistence
type WalletRepository struct {
	store *Store
}

// NewWalletRepository creates a new repository
func NewWalletRepository(store *Store) *WalletRepository {
	return &WalletRepository{store: store}
}

// Create inserts a new wallet record
func (r *WalletRepository) Create(ctx context.Context, w *Wallet) error {
	query := `
		INSERT INTO wallets (id, chain, address, account_index, sealed_seed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.store.pool.Exec(ctx, query,
		w.ID, string(w.Chain), w.Address, int64(w.AccountIndex), w.SealedSeed, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByAddress retrieves a wallet by its public address. Returns nil when
// not found.
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*Wallet, error) {
	query := `
		SELECT id, chain, address, account_index, sealed_seed, created_at
		FROM wallets
		WHERE lower(address) = lower($1)
	`

	w := &Wallet{}
	var chain string
	var index int64
	err := r.store.pool.QueryRow(ctx, query, address).Scan(
		&w.ID, &chain, &w.Address, &index, &w.SealedSeed, &w.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	w.Chain = types.Chain(chain)
	w.AccountIndex = uint32(index)
	return w, nil
}
