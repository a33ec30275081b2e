package seedvault

import (
	"context"
	"fmt"
)

// Vault seals and unseals seed phrases through the configured provider.
// Sealed blobs are what storage persists; the plaintext phrase exists only
// inside WithSeed's callback and is zeroed before it returns.
type Vault struct {
	provider Provider
}

// New creates a seed vault backed by the given provider.
func New(provider Provider) *Vault {
	return &Vault{provider: provider}
}

// Seal encrypts a seed phrase for persistence.
func (v *Vault) Seal(ctx context.Context, seedPhrase string) ([]byte, error) {
	if seedPhrase == "" {
		return nil, fmt.Errorf("seed phrase is empty")
	}
	return v.provider.Encrypt(ctx, []byte(seedPhrase))
}

// WithSeed decrypts a sealed seed blob, invokes fn with the plaintext
// phrase, and zeroes the buffer before returning. The phrase must not
// escape fn.
func (v *Vault) WithSeed(ctx context.Context, sealed []byte, fn func(seedPhrase string) error) error {
	plaintext, err := v.provider.Decrypt(ctx, sealed)
	if err != nil {
		return fmt.Errorf("failed to unseal seed: %w", err)
	}
	defer func() {
		for i := range plaintext {
			plaintext[i] = 0
		}
	}()

	return fn(string(plaintext))
}

// ProviderName reports which backend seals seeds, for startup logging.
func (v *Vault) ProviderName() string {
	return v.provider.Name()
}
