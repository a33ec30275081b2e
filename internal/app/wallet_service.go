// Package app orchestrates wallet operations: derivation, session
// management, policy-gated signing, and the activity trail.
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ward-wallet/ward-wallet/internal/chain"
	"github.com/ward-wallet/ward-wallet/internal/keys"
	"github.com/ward-wallet/ward-wallet/internal/policy"
	"github.com/ward-wallet/ward-wallet/internal/seedvault"
	"github.com/ward-wallet/ward-wallet/internal/storage"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// WalletStore persists wallet records.
type WalletStore interface {
	Create(ctx context.Context, w *storage.Wallet) error
	GetByAddress(ctx context.Context, address string) (*storage.Wallet, error)
}

// ShareStore persists encrypted recovery shares.
type ShareStore interface {
	Create(ctx context.Context, share *storage.RecoveryShare) error
	GetByWalletID(ctx context.Context, walletID uuid.UUID) ([]*storage.RecoveryShare, error)
}

// ActivityStore persists the append-only activity trail.
type ActivityStore interface {
	Create(ctx context.Context, rec *types.ActivityRecord) error
	ListByAddress(ctx context.Context, address string, limit int) ([]*types.ActivityRecord, error)
}

// PolicyStore persists policy snapshots.
type PolicyStore interface {
	Upsert(ctx context.Context, p *types.PolicySnapshot) error
	GetByWalletAddress(ctx context.Context, address string) (*types.PolicySnapshot, error)
}

// SessionManager issues and validates origin-bound sessions.
type SessionManager interface {
	Create(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error)
	Validate(ctx context.Context, id, origin string) (*types.Session, error)
}

// LedgerSource computes rolling spend windows for an address.
type LedgerSource interface {
	Windows(ctx context.Context, address string, now time.Time) (*policy.LedgerWindows, error)
}

// ActivityPublisher fans out activity records to connected observers.
type ActivityPublisher interface {
	Publish(rec *types.ActivityRecord)
}

// ChainClients routes to the node client for a chain.
type ChainClients interface {
	ForChain(c types.Chain) (chain.Client, error)
}

// activityListLimit caps one activity feed page.
const activityListLimit = 100

// WalletService handles wallet operations.
type WalletService struct {
	walletRepo WalletStore
	shareRepo  ShareStore
	activities ActivityStore
	policyRepo PolicyStore
	sessions   SessionManager
	ledger     LedgerSource
	publisher  ActivityPublisher
	clients    ChainClients
	vault      *seedvault.Vault
	policyEng  *policy.Engine
	ethChainID int64

	now func() time.Time

	// addrLocks serializes the read-authorize-sign-append sequence per
	// wallet address so concurrent sends cannot both pass a rolling limit.
	addrMu    sync.Mutex
	addrLocks map[string]*sync.Mutex
}

// NewWalletService creates a new wallet service.
func NewWalletService(
	walletRepo WalletStore,
	shareRepo ShareStore,
	activities ActivityStore,
	policyRepo PolicyStore,
	sessions SessionManager,
	ledger LedgerSource,
	publisher ActivityPublisher,
	clients ChainClients,
	vault *seedvault.Vault,
	policyEng *policy.Engine,
	ethChainID int64,
) *WalletService {
	return &WalletService{
		walletRepo: walletRepo,
		shareRepo:  shareRepo,
		activities: activities,
		policyRepo: policyRepo,
		sessions:   sessions,
		ledger:     ledger,
		publisher:  publisher,
		clients:    clients,
		vault:      vault,
		policyEng:  policyEng,
		ethChainID: ethChainID,
		now:        time.Now,
		addrLocks:  make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the service clock, for tests.
func (s *WalletService) WithClock(now func() time.Time) *WalletService {
	s.now = now
	return s
}

// CreateWalletRequest represents a request to create a wallet.
type CreateWalletRequest struct {
	SeedPhrase   string
	Chain        types.Chain
	AccountIndex uint32
}

// CreateWalletResponse includes the derived address and the guardian's
// recovery share. The owner share is returned once and never stored.
type CreateWalletResponse struct {
	WalletID   uuid.UUID   `json:"wallet_id"`
	Chain      types.Chain `json:"chain"`
	Address    string      `json:"address"`
	OwnerShare []byte      `json:"owner_share"`
}

// CreateWallet derives an address from the seed phrase, seals the seed, and
// persists the wallet with its recovery shares. Derivation failures abort
// the whole operation; a wallet is never created with a fallback key.
func (s *WalletService) CreateWallet(ctx context.Context, req *CreateWalletRequest) (*CreateWalletResponse, error) {
	if !req.Chain.Valid() {
		return nil, apperrors.ChainNotSupported(string(req.Chain))
	}

	keypair, err := keys.Derive(req.SeedPhrase, req.Chain, req.AccountIndex)
	if err != nil {
		return nil, err
	}
	defer keypair.Zero()

	sealed, err := s.vault.Seal(ctx, req.SeedPhrase)
	if err != nil {
		return nil, fmt.Errorf("failed to seal seed: %w", err)
	}

	shares, err := seedvault.SplitSeed(req.SeedPhrase)
	if err != nil {
		return nil, fmt.Errorf("failed to split recovery shares: %w", err)
	}

	now := s.now().UTC()
	wallet := &storage.Wallet{
		ID:           uuid.New(),
		Chain:        req.Chain,
		Address:      keypair.Address,
		AccountIndex: req.AccountIndex,
		SealedSeed:   sealed,
		CreatedAt:    now,
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	// Share 0 goes back to the owner; the rest are sealed and kept for
	// guardian-assisted recovery.
	for i, share := range shares.Shares[1:] {
		blob, err := s.vault.Seal(ctx, string(share))
		if err != nil {
			return nil, fmt.Errorf("failed to seal recovery share: %w", err)
		}
		rec := &storage.RecoveryShare{
			ID:            uuid.New(),
			WalletID:      wallet.ID,
			ShareIndex:    i + 1,
			BlobEncrypted: blob,
			CreatedAt:     now,
		}
		if err := s.shareRepo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to store recovery share: %w", err)
		}
	}

	return &CreateWalletResponse{
		WalletID:   wallet.ID,
		Chain:      req.Chain,
		Address:    keypair.Address,
		OwnerShare: shares.Shares[0],
	}, nil
}

// CreateSession issues an origin-bound session for an existing wallet. A
// zero chainID defaults to the server's EVM chain for Ethereum wallets;
// Solana wallets have no chain ID and keep zero.
func (s *WalletService) CreateSession(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error) {
	if address == "" || origin == "" {
		return nil, apperrors.Malformed("address and origin are required")
	}

	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet == nil {
		return nil, apperrors.Unauthorized("unknown wallet address")
	}

	if chainID == 0 && wallet.Chain == types.ChainEthereum {
		chainID = s.ethChainID
	}

	return s.sessions.Create(ctx, wallet.Address, chainID, origin)
}

// ValidateSession resolves a session token bound to the given origin.
func (s *WalletService) ValidateSession(ctx context.Context, token, origin string) (*types.Session, error) {
	return s.sessions.Validate(ctx, token, origin)
}

// GetBalance returns the native balance for the session's wallet.
func (s *WalletService) GetBalance(ctx context.Context, sess *types.Session) (*big.Float, error) {
	wallet, client, err := s.walletClient(ctx, sess.Address)
	if err != nil {
		return nil, err
	}
	return client.GetBalance(ctx, wallet.Address)
}

// Sign produces a signature over msg with the session wallet's key. Message
// signing does not move value and is not subject to spending limits.
func (s *WalletService) Sign(ctx context.Context, sess *types.Session, msg []byte) (string, error) {
	wallet, client, err := s.walletClient(ctx, sess.Address)
	if err != nil {
		return "", err
	}

	var signature string
	err = s.vault.WithSeed(ctx, wallet.SealedSeed, func(seedPhrase string) error {
		keypair, derr := keys.Derive(seedPhrase, wallet.Chain, wallet.AccountIndex)
		if derr != nil {
			return derr
		}
		defer keypair.Zero()

		signature, derr = client.Sign(ctx, keypair.PrivateKey, msg)
		return derr
	})
	if err != nil {
		return "", err
	}
	return signature, nil
}

// SendTransaction authorizes, signs, and broadcasts a transaction for the
// session's wallet, then appends a pending activity record and publishes
// it. The whole sequence holds the wallet's address lock so two concurrent
// sends cannot both slip under a rolling spending limit. A policy denial is
// terminal: nothing is signed, nothing is broadcast, nothing is retried.
func (s *WalletService) SendTransaction(ctx context.Context, sess *types.Session, tx *types.ProposedTransaction) (string, error) {
	if tx == nil || tx.To == "" {
		return "", apperrors.Malformed("recipient is required")
	}
	if tx.Value == nil || tx.Value.Sign() < 0 {
		return "", apperrors.Malformed("transaction value must be non-negative")
	}

	lock := s.lockFor(sess.Address)
	lock.Lock()
	defer lock.Unlock()

	wallet, client, err := s.walletClient(ctx, sess.Address)
	if err != nil {
		return "", err
	}

	snapshot, err := s.policyRepo.GetByWalletAddress(ctx, wallet.Address)
	if err != nil {
		return "", fmt.Errorf("failed to load policy: %w", err)
	}

	now := s.now().UTC()
	windows, err := s.ledger.Windows(ctx, wallet.Address, now)
	if err != nil {
		return "", fmt.Errorf("failed to compute spend windows: %w", err)
	}

	if result := s.policyEng.Authorize(snapshot, tx, windows, now); !result.Allowed() {
		return "", apperrors.PolicyRejected(result.Reason)
	}

	var hash string
	err = s.vault.WithSeed(ctx, wallet.SealedSeed, func(seedPhrase string) error {
		keypair, derr := keys.Derive(seedPhrase, wallet.Chain, wallet.AccountIndex)
		if derr != nil {
			return derr
		}
		defer keypair.Zero()

		hash, derr = client.SendTransaction(ctx, keypair.PrivateKey, tx.To, tx.Value)
		return derr
	})
	if err != nil {
		return "", err
	}

	rec := &types.ActivityRecord{
		Hash:      hash,
		Type:      types.ActivitySend,
		Status:    types.StatusPending,
		Timestamp: now,
		Address:   wallet.Address,
		Chain:     wallet.Chain,
		Value:     tx.Value,
	}
	if tx.DApp != "" {
		rec.Details = map[string]string{"dapp": tx.DApp}
	}
	if err := s.activities.Create(ctx, rec); err != nil {
		// The transaction is already on the wire; surface the bookkeeping
		// failure without pretending the send failed.
		return hash, fmt.Errorf("transaction %s sent but activity record failed: %w", hash, err)
	}
	s.publisher.Publish(rec)

	return hash, nil
}

// Activities returns the most recent activity records for an address.
func (s *WalletService) Activities(ctx context.Context, address string) ([]*types.ActivityRecord, error) {
	if address == "" {
		return nil, apperrors.Malformed("address is required")
	}
	return s.activities.ListByAddress(ctx, address, activityListLimit)
}

// GetPolicy returns the policy snapshot for a wallet, or nil when none is
// configured.
func (s *WalletService) GetPolicy(ctx context.Context, address string) (*types.PolicySnapshot, error) {
	if address == "" {
		return nil, apperrors.Malformed("address is required")
	}
	return s.policyRepo.GetByWalletAddress(ctx, address)
}

// UpdatePolicy replaces the policy snapshot for a wallet. Updates apply to
// the next authorization; in-flight transactions keep the snapshot they
// were evaluated against.
func (s *WalletService) UpdatePolicy(ctx context.Context, snapshot *types.PolicySnapshot) error {
	if snapshot == nil || snapshot.WalletAddress == "" {
		return apperrors.Malformed("wallet address is required")
	}
	if tr := snapshot.TimeRestrictions; tr != nil {
		if tr.StartHour < 0 || tr.StartHour > 23 || tr.EndHour < 0 || tr.EndHour > 23 {
			return apperrors.Malformed("restriction hours must be between 0 and 23")
		}
	}
	snapshot.UpdatedAt = s.now().UTC()
	return s.policyRepo.Upsert(ctx, snapshot)
}

// RecoverSeed reconstructs a seed phrase from recovery shares. The owner
// share comes from the caller; stored guardian shares are unsealed first.
func (s *WalletService) RecoverSeed(ctx context.Context, walletID uuid.UUID, ownerShare []byte) (string, error) {
	stored, err := s.shareRepo.GetByWalletID(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("failed to load recovery shares: %w", err)
	}
	if len(stored) == 0 {
		return "", apperrors.ErrNotFound
	}

	shares := [][]byte{ownerShare}
	for _, rec := range stored {
		var plain []byte
		uerr := s.vault.WithSeed(ctx, rec.BlobEncrypted, func(share string) error {
			plain = []byte(share)
			return nil
		})
		if uerr != nil {
			return "", fmt.Errorf("failed to unseal recovery share: %w", uerr)
		}
		shares = append(shares, plain)
		if len(shares) >= seedvault.RecoveryThreshold {
			break
		}
	}

	return seedvault.CombineShares(shares)
}

// walletClient loads a wallet and the node client for its chain.
func (s *WalletService) walletClient(ctx context.Context, address string) (*storage.Wallet, chain.Client, error) {
	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet == nil {
		return nil, nil, apperrors.Unauthorized("unknown wallet address")
	}

	client, err := s.clients.ForChain(wallet.Chain)
	if err != nil {
		return nil, nil, err
	}
	return wallet, client, nil
}

// lockFor returns the mutex guarding an address, creating it on first use.
// Addresses are case-insensitive on EVM chains, so keys are lowercased.
func (s *WalletService) lockFor(address string) *sync.Mutex {
	key := strings.ToLower(address)
	s.addrMu.Lock()
	defer s.addrMu.Unlock()

	lock, ok := s.addrLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.addrLocks[key] = lock
	}
	return lock
}
