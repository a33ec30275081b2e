package seedvault

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

const (
	// RecoveryThreshold is the minimum number of shares required to
	// reconstruct a seed.
	RecoveryThreshold = 2
	// RecoveryTotalShares is the total number of shares generated: one held
	// by the wallet owner, one by the guardian.
	RecoveryTotalShares = 3
)

// RecoveryShares holds the Shamir shares for a sealed seed. Any
// RecoveryThreshold of the Shares reconstruct the original.
type RecoveryShares struct {
	Shares    [][]byte
	Threshold int
}

// SplitSeed splits a plaintext seed phrase into recovery shares using
// Shamir's Secret Sharing.
func SplitSeed(seedPhrase string) (*RecoveryShares, error) {
	if seedPhrase == "" {
		return nil, fmt.Errorf("seed phrase cannot be empty")
	}

	shares, err := shamir.Split([]byte(seedPhrase), RecoveryTotalShares, RecoveryThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split seed: %w", err)
	}

	return &RecoveryShares{
		Shares:    shares,
		Threshold: RecoveryThreshold,
	}, nil
}

// CombineShares reconstructs the seed phrase from recovery shares.
func CombineShares(shares [][]byte) (string, error) {
	if len(shares) < RecoveryThreshold {
		return "", fmt.Errorf("at least %d shares are required, got %d", RecoveryThreshold, len(shares))
	}

	for i, share := range shares {
		if len(share) == 0 {
			return "", fmt.Errorf("share %d is empty", i)
		}
	}

	secret, err := shamir.Combine(shares)
	if err != nil {
		return "", fmt.Errorf("failed to combine shares: %w", err)
	}

	return string(secret), nil
}
