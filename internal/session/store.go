// Package session maps opaque session tokens to wallet identities. A
// session is origin-bound and expires 24 hours after creation regardless of
// activity. The store owns an in-memory cache over a durable repository;
// it is constructed at process start and passed by handle to every
// component that resolves sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Validation outcomes. Origin mismatch is reported without mutating any
// session state so a hijack probe cannot keep a session warm.
var (
	ErrNotFound       = errors.New("session not found")
	ErrExpired        = errors.New("session expired")
	ErrOriginMismatch = errors.New("session origin mismatch")
)

// Repository is the durable backing for sessions.
// *storage.SessionRepository implements it.
type Repository interface {
	Create(ctx context.Context, s *types.Session) error
	GetByID(ctx context.Context, id string) (*types.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store validates and refreshes sessions against both the in-memory cache
// and the backing repository.
type Store struct {
	repo Repository
	now  func() time.Time

	mu    sync.RWMutex
	cache map[string]*types.Session
}

// NewStore creates a session store over the given repository.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:  repo,
		now:   time.Now,
		cache: make(map[string]*types.Session),
	}
}

// WithClock overrides the store's clock. Tests use this to cross the
// expiry boundary without sleeping.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create mints a new session bound to a wallet identity and an origin.
func (s *Store) Create(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error) {
	if address == "" || origin == "" {
		return nil, fmt.Errorf("address and origin are required")
	}

	now := s.now()
	sess := &types.Session{
		ID:             uuid.NewString(),
		Address:        address,
		ChainID:        chainID,
		Origin:         origin,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.cache[sess.ID] = sess
	s.mu.Unlock()

	return copySession(sess), nil
}

// Validate resolves a session token and checks origin and expiry. On
// success it refreshes lastAccessedAt, writing through to the repository
// before returning, so a crash cannot leave the durable record stale.
// An expired session is evicted from both the cache and the repository.
func (s *Store) Validate(ctx context.Context, id, origin string) (*types.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	// Origin binding is checked first, regardless of expiry: a token
	// presented from the wrong origin always gets OriginMismatch and
	// never mutates or evicts session state.
	if sess.Origin != origin {
		return nil, ErrOriginMismatch
	}

	now := s.now()
	if sess.Expired(now) {
		s.evict(ctx, id)
		return nil, ErrExpired
	}

	if err := s.repo.Touch(ctx, id, now); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		cached.LastAccessedAt = now
	}
	s.mu.Unlock()

	sess.LastAccessedAt = now
	return sess, nil
}

// EvictExpired sweeps expired sessions from the cache and the repository.
// Returns the number of sessions evicted from the durable store.
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-types.SessionTTL)

	s.mu.Lock()
	for id, sess := range s.cache {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.cache, id)
		}
	}
	s.mu.Unlock()

	return s.repo.DeleteExpired(ctx, cutoff)
}

// lookup reads from the cache, falling back to the repository on miss. It
// returns a private copy, taken while the lock is held, so callers never
// share memory with cache entries that concurrent Validate calls touch.
func (s *Store) lookup(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	if sess, ok := s.cache[id]; ok {
		out := copySession(sess)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}

	// Copy before releasing the lock: once the pointer is in the cache,
	// concurrent validations may be touching it.
	s.mu.Lock()
	s.cache[id] = sess
	out := copySession(sess)
	s.mu.Unlock()

	return out, nil
}

// evict removes a session from both layers. Repository errors are ignored:
// the session is already invalid and the sweep will retry.
func (s *Store) evict(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	_ = s.repo.Delete(ctx, id)
}

func copySession(sess *types.Session) *types.Session {
	out := *sess
	return &out
}
