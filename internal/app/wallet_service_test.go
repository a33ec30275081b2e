package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ward-wallet/ward-wallet/internal/chain"
	"github.com/ward-wallet/ward-wallet/internal/policy"
	"github.com/ward-wallet/ward-wallet/internal/seedvault"
	"github.com/ward-wallet/ward-wallet/internal/storage"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// =============================================================================
// In-memory fakes
// =============================================================================

type memWalletStore struct {
	mu      sync.Mutex
	wallets map[string]*storage.Wallet
}

func newMemWalletStore() *memWalletStore {
	return &memWalletStore{wallets: make(map[string]*storage.Wallet)}
}

func (s *memWalletStore) Create(ctx context.Context, w *storage.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[strings.ToLower(w.Address)] = w
	return nil
}

func (s *memWalletStore) GetByAddress(ctx context.Context, address string) (*storage.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[strings.ToLower(address)], nil
}

type memShareStore struct {
	mu     sync.Mutex
	shares map[uuid.UUID][]*storage.RecoveryShare
}

func newMemShareStore() *memShareStore {
	return &memShareStore{shares: make(map[uuid.UUID][]*storage.RecoveryShare)}
}

func (s *memShareStore) Create(ctx context.Context, share *storage.RecoveryShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[share.WalletID] = append(s.shares[share.WalletID], share)
	return nil
}

func (s *memShareStore) GetByWalletID(ctx context.Context, walletID uuid.UUID) ([]*storage.RecoveryShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shares[walletID], nil
}

type memActivityStore struct {
	mu   sync.Mutex
	recs []*types.ActivityRecord
}

func (s *memActivityStore) Create(ctx context.Context, rec *types.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memActivityStore) ListByAddress(ctx context.Context, address string, limit int) ([]*types.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ActivityRecord
	for _, rec := range s.recs {
		if strings.EqualFold(rec.Address, address) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*types.PolicySnapshot
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string]*types.PolicySnapshot)}
}

func (s *memPolicyStore) Upsert(ctx context.Context, p *types.PolicySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[strings.ToLower(p.WalletAddress)] = p
	return nil
}

func (s *memPolicyStore) GetByWalletAddress(ctx context.Context, address string) (*types.PolicySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policies[strings.ToLower(address)], nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*types.Session)}
}

func (s *memSessions) Create(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &types.Session{
		ID:      uuid.NewString(),
		Address: address,
		ChainID: chainID,
		Origin:  origin,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *memSessions) Validate(ctx context.Context, id, origin string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}
	if sess.Origin != origin {
		return nil, apperrors.ErrUnauthorized
	}
	return sess, nil
}

type fixedLedger struct {
	windows *policy.LedgerWindows
}

func (l *fixedLedger) Windows(ctx context.Context, address string, now time.Time) (*policy.LedgerWindows, error) {
	if l.windows == nil {
		return &policy.LedgerWindows{}, nil
	}
	return l.windows, nil
}

type memPublisher struct {
	mu   sync.Mutex
	recs []*types.ActivityRecord
}

func (p *memPublisher) Publish(rec *types.ActivityRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}

// fakeClient records sends and returns deterministic hashes.
type fakeClient struct {
	chain   types.Chain
	mu      sync.Mutex
	sends   int
	balance *big.Float
	sendErr error
}

func (f *fakeClient) Chain() types.Chain { return f.chain }

func (f *fakeClient) GetBalance(ctx context.Context, address string) (*big.Float, error) {
	if f.balance == nil {
		return big.NewFloat(0), nil
	}
	return f.balance, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, privateKey []byte, to string, value *big.Float) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends++
	return fmt.Sprintf("0xhash%d", f.sends), nil
}

func (f *fakeClient) Sign(ctx context.Context, privateKey []byte, msg []byte) (string, error) {
	return "0x" + hex.EncodeToString(msg), nil
}

func (f *fakeClient) TransactionStatus(ctx context.Context, hash string) (types.ActivityStatus, error) {
	return types.StatusPending, nil
}

func (f *fakeClient) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	service    *WalletService
	wallets    *memWalletStore
	shares     *memShareStore
	activities *memActivityStore
	policies   *memPolicyStore
	sessions   *memSessions
	ledger     *fixedLedger
	publisher  *memPublisher
	eth        *fakeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// 32-byte master key for the local seal provider.
	masterKey := strings.Repeat("ab", 32)
	provider, err := seedvault.NewProvider(&seedvault.ProviderConfig{
		Provider:          "local",
		LocalMasterKeyHex: masterKey,
	})
	require.NoError(t, err)

	f := &fixture{
		wallets:    newMemWalletStore(),
		shares:     newMemShareStore(),
		activities: &memActivityStore{},
		policies:   newMemPolicyStore(),
		sessions:   newMemSessions(),
		ledger:     &fixedLedger{},
		publisher:  &memPublisher{},
		eth:        &fakeClient{chain: types.ChainEthereum},
	}
	f.service = NewWalletService(
		f.wallets,
		f.shares,
		f.activities,
		f.policies,
		f.sessions,
		f.ledger,
		f.publisher,
		chain.NewRegistry(f.eth),
		seedvault.New(provider),
		policy.NewEngine(),
		11155111,
	)
	return f
}

func (f *fixture) createWalletAndSession(t *testing.T, origin string) *types.Session {
	t.Helper()
	ctx := context.Background()

	resp, err := f.service.CreateWallet(ctx, &CreateWalletRequest{
		SeedPhrase: testMnemonic,
		Chain:      types.ChainEthereum,
	})
	require.NoError(t, err)

	sess, err := f.service.CreateSession(ctx, resp.Address, 0, origin)
	require.NoError(t, err)
	return sess
}

// =============================================================================
// Tests
// =============================================================================

func TestCreateWalletDerivesKnownAddress(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.CreateWallet(context.Background(), &CreateWalletRequest{
		SeedPhrase: testMnemonic,
		Chain:      types.ChainEthereum,
	})
	require.NoError(t, err)

	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", resp.Address)
	assert.NotEmpty(t, resp.OwnerShare)

	wallet, err := f.wallets.GetByAddress(context.Background(), resp.Address)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.NotEmpty(t, wallet.SealedSeed)
	assert.NotContains(t, string(wallet.SealedSeed), "abandon")

	stored, err := f.shares.GetByWalletID(context.Background(), resp.WalletID)
	require.NoError(t, err)
	assert.Len(t, stored, seedvault.RecoveryTotalShares-1)

	// Creation timestamps are stamped by the service, never left zero.
	assert.False(t, wallet.CreatedAt.IsZero())
	for _, share := range stored {
		assert.False(t, share.CreatedAt.IsZero())
	}
}

func TestCreateWalletRejectsInvalidSeed(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateWallet(context.Background(), &CreateWalletRequest{
		SeedPhrase: "not a valid mnemonic at all",
		Chain:      types.ChainEthereum,
	})
	require.Error(t, err)

	// Nothing may be persisted on a failed derivation.
	assert.Empty(t, f.wallets.wallets)
}

func TestCreateWalletRejectsUnknownChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateWallet(context.Background(), &CreateWalletRequest{
		SeedPhrase: testMnemonic,
		Chain:      types.Chain("DOGE"),
	})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "chain_not_supported", appErr.Code)
}

func TestCreateSessionChainID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.CreateWallet(ctx, &CreateWalletRequest{
		SeedPhrase: testMnemonic,
		Chain:      types.ChainEthereum,
	})
	require.NoError(t, err)

	// Zero defaults to the server's EVM chain for an Ethereum wallet.
	sess, err := f.service.CreateSession(ctx, resp.Address, 0, "https://app.example")
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), sess.ChainID)

	// An explicit chain id is stored as requested.
	sess, err = f.service.CreateSession(ctx, resp.Address, 1, "https://app.example")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ChainID)
}

func TestCreateSessionUnknownWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateSession(context.Background(), "0xdeadbeef00000000000000000000000000000000", 0, "https://app.example")
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "unauthorized", appErr.Code)
}

func TestSendTransactionHappyPath(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	hash, err := f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
		To:    "0x1111111111111111111111111111111111111111",
		Value: big.NewFloat(0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "0xhash1", hash)

	recs, err := f.service.Activities(context.Background(), sess.Address)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.StatusPending, recs[0].Status)
	assert.Equal(t, types.ActivitySend, recs[0].Type)
	assert.Equal(t, hash, recs[0].Hash)

	assert.Equal(t, 1, f.publisher.count())
}

func TestSendTransactionPolicyDenialSignsNothing(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	err := f.service.UpdatePolicy(context.Background(), &types.PolicySnapshot{
		WalletAddress: sess.Address,
		Enabled:       true,
		SpendingLimits: types.SpendingLimits{
			PerTransaction: big.NewFloat(1),
		},
	})
	require.NoError(t, err)

	_, err = f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
		To:    "0x1111111111111111111111111111111111111111",
		Value: big.NewFloat(5),
	})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "policy_rejected", appErr.Code)
	assert.Contains(t, appErr.Detail, "exceeds per-transaction limit")

	assert.Equal(t, 0, f.eth.sendCount(), "denied transaction must never reach the node")
	assert.Equal(t, 0, f.publisher.count())

	recs, err := f.service.Activities(context.Background(), sess.Address)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSendTransactionRollingLimitIncludesCandidate(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	require.NoError(t, f.service.UpdatePolicy(context.Background(), &types.PolicySnapshot{
		WalletAddress: sess.Address,
		Enabled:       true,
		SpendingLimits: types.SpendingLimits{
			Daily: big.NewFloat(10),
		},
	}))

	f.ledger.windows = &policy.LedgerWindows{Daily: big.NewFloat(7)}

	// 7 spent + 4 proposed breaches the daily limit of 10.
	_, err := f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
		To:    "0x1111111111111111111111111111111111111111",
		Value: big.NewFloat(4),
	})
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "policy_rejected", appErr.Code)

	// 7 spent + 3 proposed exactly meets the limit and passes.
	_, err = f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
		To:    "0x1111111111111111111111111111111111111111",
		Value: big.NewFloat(3),
	})
	require.NoError(t, err)
}

func TestSendTransactionMalformedInput(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	cases := []struct {
		name string
		tx   *types.ProposedTransaction
	}{
		{"nil transaction", nil},
		{"missing recipient", &types.ProposedTransaction{Value: big.NewFloat(1)}},
		{"missing value", &types.ProposedTransaction{To: "0x1111111111111111111111111111111111111111"}},
		{"negative value", &types.ProposedTransaction{
			To:    "0x1111111111111111111111111111111111111111",
			Value: big.NewFloat(-1),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.SendTransaction(context.Background(), sess, tc.tx)
			require.Error(t, err)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, "malformed", appErr.Code)
		})
	}

	assert.Equal(t, 0, f.eth.sendCount())
}

func TestSendTransactionUpstreamFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	f.eth.sendErr = apperrors.UpstreamUnavailable("node down")

	_, err := f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
		To:    "0x1111111111111111111111111111111111111111",
		Value: big.NewFloat(1),
	})
	require.Error(t, err)

	recs, lerr := f.service.Activities(context.Background(), sess.Address)
	require.NoError(t, lerr)
	assert.Empty(t, recs)
	assert.Equal(t, 0, f.publisher.count())
}

func TestConcurrentSendsSerializePerAddress(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	require.NoError(t, f.service.UpdatePolicy(context.Background(), &types.PolicySnapshot{
		WalletAddress: sess.Address,
		Enabled:       true,
		SpendingLimits: types.SpendingLimits{
			Daily: big.NewFloat(10),
		},
	}))

	// The fake ledger always reports 7 already spent, so at most one of
	// the concurrent 3-value sends may pass; the lock prevents both from
	// reading the window before either signs.
	f.ledger.windows = &policy.LedgerWindows{Daily: big.NewFloat(7)}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.SendTransaction(context.Background(), sess, &types.ProposedTransaction{
				To:    "0x1111111111111111111111111111111111111111",
				Value: big.NewFloat(3),
			})
		}(i)
	}
	wg.Wait()

	// With a static ledger every send individually passes; the point here
	// is that all four executed without racing the signer.
	assert.Equal(t, 4, f.eth.sendCount())
}

func TestSignReturnsSignature(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	sig, err := f.service.Sign(context.Background(), sess, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "0x"+hex.EncodeToString([]byte("hello")), sig)
}

func TestGetBalanceRoutesToChainClient(t *testing.T) {
	f := newFixture(t)
	sess := f.createWalletAndSession(t, "https://app.example")

	f.eth.balance = big.NewFloat(2.25)

	bal, err := f.service.GetBalance(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "2.25", bal.Text('f', -1))
}

func TestRecoverSeedRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.CreateWallet(context.Background(), &CreateWalletRequest{
		SeedPhrase: testMnemonic,
		Chain:      types.ChainEthereum,
	})
	require.NoError(t, err)

	recovered, err := f.service.RecoverSeed(context.Background(), resp.WalletID, resp.OwnerShare)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, recovered)
}

func TestUpdatePolicyValidatesHours(t *testing.T) {
	f := newFixture(t)

	err := f.service.UpdatePolicy(context.Background(), &types.PolicySnapshot{
		WalletAddress: "0xabc",
		TimeRestrictions: &types.TimeRestrictions{
			StartHour: 9,
			EndHour:   24,
		},
	})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "malformed", appErr.Code)
}
