package types

import (
	"math/big"
	"strings"
	"time"
)

// Chain identifies which blockchain's curve and address rules apply.
type Chain string

const (
	ChainEthereum Chain = "ETH"
	ChainSolana   Chain = "SOL"
)

// Valid reports whether c is a supported chain tag.
func (c Chain) Valid() bool {
	return c == ChainEthereum || c == ChainSolana
}

// ParseChain normalizes a chain tag string.
func ParseChain(s string) (Chain, bool) {
	c := Chain(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", false
	}
	return c, true
}

// ChainKeypair is a keypair derived from a seed phrase for one chain.
// PrivateKey is raw key bytes; callers must not persist it.
type ChainKeypair struct {
	Chain      Chain
	Address    string
	PrivateKey []byte
}

// Zero overwrites the private key bytes in place.
func (k *ChainKeypair) Zero() {
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}

// SessionTTL is the absolute lifetime of a session. A session older than
// this is expired regardless of activity.
const SessionTTL = 24 * time.Hour

// Session binds an opaque token to a wallet identity and an origin.
type Session struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	ChainID        int64     `json:"chain_id"`
	Origin         string    `json:"origin"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// ExpiresAt returns the instant the session becomes invalid.
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(SessionTTL)
}

// Expired reports whether the session's absolute lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL
}

// SpendingLimits caps transaction value in native units. A nil limit means
// no restriction of that kind.
type SpendingLimits struct {
	PerTransaction *big.Float `json:"per_transaction,omitempty"`
	Daily          *big.Float `json:"daily,omitempty"`
	Weekly         *big.Float `json:"weekly,omitempty"`
	Monthly        *big.Float `json:"monthly,omitempty"`
}

// TimeRestrictions confines transactions to [StartHour, EndHour) on the
// listed weekdays. Empty DaysAllowed means every day.
type TimeRestrictions struct {
	StartHour   int            `json:"start_hour"`
	EndHour     int            `json:"end_hour"`
	DaysAllowed []time.Weekday `json:"days_allowed,omitempty"`
}

// PolicySnapshot is the parental-control configuration evaluated against
// every proposed transaction. Empty allow-lists mean no restriction;
// non-empty lists mean only listed values pass.
type PolicySnapshot struct {
	WalletAddress    string            `json:"wallet_address"`
	Enabled          bool              `json:"enabled"`
	SpendingLimits   SpendingLimits    `json:"spending_limits"`
	AllowedAddresses []string          `json:"allowed_addresses,omitempty"`
	AllowedTokens    []string          `json:"allowed_tokens,omitempty"`
	AllowedDApps     []string          `json:"allowed_dapps,omitempty"`
	TimeRestrictions *TimeRestrictions `json:"time_restrictions,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ActivityType categorizes an activity record.
type ActivityType string

const (
	ActivityMint          ActivityType = "mint"
	ActivityTransfer      ActivityType = "transfer"
	ActivityFractionalize ActivityType = "fractionalize"
	ActivitySell          ActivityType = "sell"
	ActivityBuy           ActivityType = "buy"
	ActivitySend          ActivityType = "send"
	ActivityReceive       ActivityType = "receive"
)

// ActivityStatus tracks a transaction's lifecycle.
type ActivityStatus string

const (
	StatusPending   ActivityStatus = "pending"
	StatusConfirmed ActivityStatus = "confirmed"
	StatusFailed    ActivityStatus = "failed"
)

// ActivityRecord is an append-only audit-trail entry keyed by transaction
// hash. Status transitions pending -> confirmed|failed in place; records
// are never deleted.
type ActivityRecord struct {
	Hash      string            `json:"hash"`
	Type      ActivityType      `json:"type"`
	Status    ActivityStatus    `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Address   string            `json:"address"`
	Chain     Chain             `json:"chain"`
	Value     *big.Float        `json:"value,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ProposedTransaction is the policy engine's view of a transaction before
// signing. Value is in native units (ETH or SOL, not wei/lamports).
type ProposedTransaction struct {
	To       string
	Value    *big.Float
	TokenTag string
	DApp     string
}
