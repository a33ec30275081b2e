// Package keys derives per-chain signing keypairs from a seed phrase.
// Derivation is a pure function of (seed phrase, chain, account index):
// re-deriving always yields the same address, which is the only recovery
// mechanism the owner has. Nothing in this package performs I/O.
package keys

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	bip39 "github.com/tyler-smith/go-bip39"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// BIP-44 purpose and coin types. Ethereum uses the account-level secp256k1
// path m/44'/60'/0'/0/index; Solana uses the SLIP-0010 Ed25519 path
// m/44'/501'/index'/0'.
const (
	purposeBIP44   = 44
	coinTypeEth    = 60
	coinTypeSol    = 501
	hardenedOffset = hdkeychain.HardenedKeyStart
)

// Derive derives the keypair for the given chain and account index from a
// BIP-39 seed phrase. It never substitutes a random key on failure: a
// malformed phrase returns an invalid_seed error and an internal derivation
// fault returns derivation_error, so the caller treats the wallet as
// uninitialized instead of minting unrecoverable keys.
func Derive(seedPhrase string, chain types.Chain, accountIndex uint32) (*types.ChainKeypair, error) {
	seed, err := seedFromPhrase(seedPhrase)
	if err != nil {
		return nil, err
	}

	switch chain {
	case types.ChainEthereum:
		return deriveEthereum(seed, accountIndex)
	case types.ChainSolana:
		return deriveSolana(seed, accountIndex)
	default:
		return nil, apperrors.ChainNotSupported(string(chain))
	}
}

// seedFromPhrase validates the mnemonic (word count and checksum) and
// stretches it into a BIP-39 binary seed.
func seedFromPhrase(seedPhrase string) ([]byte, error) {
	phrase := strings.TrimSpace(seedPhrase)
	if phrase == "" {
		return nil, apperrors.ErrInvalidSeed
	}

	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeInvalidSeed,
			"Seed phrase is empty or malformed",
			err.Error(),
			http.StatusBadRequest,
		)
	}

	return seed, nil
}

// deriveEthereum walks the BIP-44 path m/44'/60'/0'/0/index on secp256k1.
func deriveEthereum(seed []byte, accountIndex uint32) (*types.ChainKeypair, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, apperrors.DerivationError(fmt.Sprintf("master key: %v", err))
	}

	path := []uint32{
		hardenedOffset + purposeBIP44,
		hardenedOffset + coinTypeEth,
		hardenedOffset + 0,
		0,
		accountIndex,
	}

	key := master
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, apperrors.DerivationError(fmt.Sprintf("path step %d: %v", step, err))
		}
	}

	btcPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, apperrors.DerivationError(fmt.Sprintf("private key: %v", err))
	}

	priv := btcPriv.ToECDSA()
	address := ethcrypto.PubkeyToAddress(priv.PublicKey)

	return &types.ChainKeypair{
		Chain:      types.ChainEthereum,
		Address:    address.Hex(),
		PrivateKey: ethcrypto.FromECDSA(priv),
	}, nil
}

// deriveSolana walks the hardened SLIP-0010 Ed25519 path m/44'/501'/index'/0'.
func deriveSolana(seed []byte, accountIndex uint32) (*types.ChainKeypair, error) {
	node, err := slip10MasterFromSeed(seed)
	if err != nil {
		return nil, apperrors.DerivationError(fmt.Sprintf("master node: %v", err))
	}

	path := []uint32{
		hardenedOffset + purposeBIP44,
		hardenedOffset + coinTypeSol,
		hardenedOffset + accountIndex,
		hardenedOffset + 0,
	}

	for _, step := range path {
		node, err = node.deriveHardened(step)
		if err != nil {
			return nil, apperrors.DerivationError(fmt.Sprintf("path step %d: %v", step, err))
		}
	}

	private := ed25519.NewKeyFromSeed(node.key)
	solPriv := solana.PrivateKey(private)

	return &types.ChainKeypair{
		Chain:      types.ChainSolana,
		Address:    solPriv.PublicKey().String(),
		PrivateKey: []byte(solPriv),
	}, nil
}
