package chain

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// lamportsPerSol converts between native display units and lamports.
var lamportsPerSol = new(big.Float).SetInt(big.NewInt(1_000_000_000))

// SolClient wraps a Solana JSON-RPC client. Balances and transaction
// values are exposed in SOL, not lamports.
type SolClient struct {
	client *rpc.Client
}

// NewSolClient creates a Solana client for the given RPC endpoint.
func NewSolClient(rpcURL string) (*SolClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	return &SolClient{client: rpc.New(rpcURL)}, nil
}

func (c *SolClient) Chain() types.Chain { return types.ChainSolana }

// GetBalance returns the balance of an address in SOL.
func (c *SolClient) GetBalance(ctx context.Context, address string) (*big.Float, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, apperrors.Malformed("invalid solana address: " + err.Error())
	}

	var lamports uint64
	err = withRetry(ctx, "sol get balance", func() error {
		out, inner := c.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		if inner != nil {
			return inner
		}
		lamports = out.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lamportsToSol(lamports), nil
}

// SendTransaction signs a native SOL transfer with the given 64-byte
// ed25519 private key and broadcasts it, returning the signature.
func (c *SolClient) SendTransaction(ctx context.Context, privateKey []byte, to string, value *big.Float) (string, error) {
	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", apperrors.Malformed("invalid recipient address: " + err.Error())
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", apperrors.DerivationError("invalid signing key length")
	}

	wallet := solana.PrivateKey(privateKey)
	fromPubkey := wallet.PublicKey()
	lamports := solToLamports(value)

	var signature string
	err = withRetry(ctx, "sol send transaction", func() error {
		recent, inner := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if inner != nil {
			return inner
		}

		transfer := system.NewTransferInstruction(lamports, fromPubkey, toPubkey).Build()
		tx, inner := solana.NewTransaction(
			[]solana.Instruction{transfer},
			recent.Value.Blockhash,
			solana.TransactionPayer(fromPubkey),
		)
		if inner != nil {
			return permanent(apperrors.Malformed("failed to build transaction: " + inner.Error()))
		}

		_, inner = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if fromPubkey.Equals(key) {
				return &wallet
			}
			return nil
		})
		if inner != nil {
			return permanent(apperrors.DerivationError("failed to sign transaction: " + inner.Error()))
		}

		sig, inner := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentFinalized,
		})
		if inner != nil {
			return inner
		}
		signature = sig.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return signature, nil
}

// Sign produces a detached ed25519 signature over msg, base58 encoded.
func (c *SolClient) Sign(ctx context.Context, privateKey []byte, msg []byte) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", apperrors.DerivationError("invalid signing key length")
	}
	wallet := solana.PrivateKey(privateKey)
	sig, err := wallet.Sign(msg)
	if err != nil {
		return "", apperrors.DerivationError("failed to sign message: " + err.Error())
	}
	return sig.String(), nil
}

// TransactionStatus reports the cluster-confirmed status of a signature.
// Unknown or still-processing signatures stay pending.
func (c *SolClient) TransactionStatus(ctx context.Context, hash string) (types.ActivityStatus, error) {
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return "", apperrors.Malformed("invalid signature: " + err.Error())
	}

	var status types.ActivityStatus
	err = withRetry(ctx, "sol signature status", func() error {
		out, inner := c.client.GetSignatureStatuses(ctx, true, sig)
		if inner != nil {
			return inner
		}
		if len(out.Value) == 0 || out.Value[0] == nil {
			status = types.StatusPending
			return nil
		}
		st := out.Value[0]
		switch {
		case st.Err != nil:
			status = types.StatusFailed
		case st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed,
			st.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
			status = types.StatusConfirmed
		default:
			status = types.StatusPending
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func lamportsToSol(lamports uint64) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetUint64(lamports), lamportsPerSol)
}

func solToLamports(sol *big.Float) uint64 {
	if sol == nil {
		return 0
	}
	lamports, _ := new(big.Float).Mul(sol, lamportsPerSol).Uint64()
	return lamports
}
