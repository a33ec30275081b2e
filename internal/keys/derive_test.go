package keys

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Standard BIP-39 test mnemonic.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDerive_EthereumKnownVector(t *testing.T) {
	kp, err := Derive(testMnemonic, types.ChainEthereum, 0)
	require.NoError(t, err)

	// Published BIP-44 vector for the test mnemonic at m/44'/60'/0'/0/0.
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", kp.Address)
	assert.Equal(t, types.ChainEthereum, kp.Chain)
	assert.Len(t, kp.PrivateKey, 32)
}

func TestDerive_Deterministic(t *testing.T) {
	for _, chain := range []types.Chain{types.ChainEthereum, types.ChainSolana} {
		first, err := Derive(testMnemonic, chain, 0)
		require.NoError(t, err)

		second, err := Derive(testMnemonic, chain, 0)
		require.NoError(t, err)

		assert.Equal(t, first.Address, second.Address, "chain %s must re-derive the same address", chain)
		assert.Equal(t, first.PrivateKey, second.PrivateKey)
	}
}

func TestDerive_AccountIndexVariesAddress(t *testing.T) {
	for _, chain := range []types.Chain{types.ChainEthereum, types.ChainSolana} {
		zero, err := Derive(testMnemonic, chain, 0)
		require.NoError(t, err)

		one, err := Derive(testMnemonic, chain, 1)
		require.NoError(t, err)

		assert.NotEqual(t, zero.Address, one.Address, "chain %s indexes must not collide", chain)
	}
}

func TestDerive_SolanaAddressIsValidBase58(t *testing.T) {
	kp, err := Derive(testMnemonic, types.ChainSolana, 0)
	require.NoError(t, err)

	pub, err := solana.PublicKeyFromBase58(kp.Address)
	require.NoError(t, err)
	assert.False(t, pub.IsZero())

	// Ed25519 private key: 32-byte seed plus 32-byte public half.
	assert.Len(t, kp.PrivateKey, 64)
}

func TestDerive_ChainsDoNotShareAddresses(t *testing.T) {
	eth, err := Derive(testMnemonic, types.ChainEthereum, 0)
	require.NoError(t, err)

	sol, err := Derive(testMnemonic, types.ChainSolana, 0)
	require.NoError(t, err)

	assert.NotEqual(t, eth.Address, sol.Address)
}

func TestDerive_InvalidSeed(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"wrong_word_count", "abandon abandon abandon"},
		{"bad_checksum", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon"},
		{"unknown_words", "zzzz yyyy xxxx wwww vvvv uuuu tttt ssss rrrr qqqq pppp oooo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(tt.phrase, types.ChainEthereum, 0)
			require.Error(t, err)

			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeInvalidSeed, appErr.Code)
		})
	}
}

func TestDerive_UnsupportedChain(t *testing.T) {
	_, err := Derive(testMnemonic, types.Chain("DOGE"), 0)
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeChainNotSupported, appErr.Code)
}

func TestDerive_Zero(t *testing.T) {
	kp, err := Derive(testMnemonic, types.ChainEthereum, 0)
	require.NoError(t, err)

	kp.Zero()
	for _, b := range kp.PrivateKey {
		assert.Zero(t, b)
	}
}
