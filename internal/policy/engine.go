// Package policy evaluates proposed transactions against a parental-control
// policy snapshot. The engine performs no I/O and is deterministic given
// identical inputs, so decisions are auditable and reproducible in tests.
package policy

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Decision represents the result of policy evaluation
type Decision int

const (
	// DecisionDeny rejects the transaction
	DecisionDeny Decision = iota
	// DecisionAllow permits the transaction
	DecisionAllow
)

// Result contains the outcome of an authorization check. A denial is
// terminal for that attempt; the engine never retries.
type Result struct {
	Decision Decision
	Reason   string
}

// Allowed reports whether the transaction may proceed.
func (r *Result) Allowed() bool {
	return r.Decision == DecisionAllow
}

// LedgerWindows is the sliding-window spend aggregation the engine checks
// rolling limits against. Sums exclude the candidate transaction; the engine
// adds it before comparing.
type LedgerWindows struct {
	Daily   *big.Float
	Weekly  *big.Float
	Monthly *big.Float
}

// Engine is the policy evaluation engine
type Engine struct{}

// NewEngine creates a new policy engine
func NewEngine() *Engine {
	return &Engine{}
}

// Authorize evaluates tx against the policy in a fixed order: allow-lists
// first (the strongest boundary), then per-transaction and rolling spending
// limits, then time restrictions. Checks are ordered cheap to expensive.
func (e *Engine) Authorize(policy *types.PolicySnapshot, tx *types.ProposedTransaction, ledger *LedgerWindows, now time.Time) *Result {
	if policy == nil || !policy.Enabled {
		return &Result{Decision: DecisionAllow}
	}

	if len(policy.AllowedAddresses) > 0 && !containsFold(policy.AllowedAddresses, tx.To) {
		return &Result{Decision: DecisionDeny, Reason: "recipient not allowed"}
	}

	if len(policy.AllowedTokens) > 0 && tx.TokenTag != "" && !containsFold(policy.AllowedTokens, tx.TokenTag) {
		return &Result{Decision: DecisionDeny, Reason: "token not allowed"}
	}

	if len(policy.AllowedDApps) > 0 && tx.DApp != "" && !containsFold(policy.AllowedDApps, tx.DApp) {
		return &Result{Decision: DecisionDeny, Reason: "dapp not allowed"}
	}

	limits := policy.SpendingLimits
	if limitSet(limits.PerTransaction) && tx.Value != nil && tx.Value.Cmp(limits.PerTransaction) > 0 {
		return &Result{Decision: DecisionDeny, Reason: "exceeds per-transaction limit"}
	}

	if ledger != nil && tx.Value != nil {
		windows := []struct {
			name  string
			limit *big.Float
			spent *big.Float
		}{
			{"daily", limits.Daily, ledger.Daily},
			{"weekly", limits.Weekly, ledger.Weekly},
			{"monthly", limits.Monthly, ledger.Monthly},
		}

		for _, w := range windows {
			if !limitSet(w.limit) {
				continue
			}
			total := new(big.Float).Set(tx.Value)
			if w.spent != nil {
				total.Add(total, w.spent)
			}
			if total.Cmp(w.limit) > 0 {
				return &Result{Decision: DecisionDeny, Reason: fmt.Sprintf("exceeds %s limit", w.name)}
			}
		}
	}

	if tr := policy.TimeRestrictions; tr != nil && !withinRestrictions(tr, now) {
		return &Result{Decision: DecisionDeny, Reason: "outside allowed hours"}
	}

	return &Result{Decision: DecisionAllow}
}

// limitSet reports whether a spending limit is configured. A nil or
// non-positive limit means no restriction of that kind.
func limitSet(limit *big.Float) bool {
	return limit != nil && limit.Sign() > 0
}

// containsFold reports whether list contains v, compared case-insensitively.
func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// withinRestrictions checks the half-open hour interval [StartHour, EndHour)
// and the allowed weekdays at the evaluation instant's local time. An
// interval with StartHour > EndHour wraps past midnight.
func withinRestrictions(tr *types.TimeRestrictions, now time.Time) bool {
	if len(tr.DaysAllowed) > 0 {
		day := now.Weekday()
		found := false
		for _, allowed := range tr.DaysAllowed {
			if allowed == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	hour := now.Hour()
	if tr.StartHour == tr.EndHour {
		return true
	}
	if tr.StartHour < tr.EndHour {
		return hour >= tr.StartHour && hour < tr.EndHour
	}
	return hour >= tr.StartHour || hour < tr.EndHour
}
