package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// weiPerEth converts between native display units and wei.
var weiPerEth = new(big.Float).SetInt(big.NewInt(1e18))

// EthClient wraps an Ethereum RPC client. Balances and transaction values
// are exposed in ETH, not wei.
type EthClient struct {
	client  *ethclient.Client
	chainID *big.Int
}

// NewEthClient connects to an EVM node and auto-detects its chain ID.
func NewEthClient(rpcURL string) (*EthClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &EthClient{
		client:  client,
		chainID: chainID,
	}, nil
}

func (c *EthClient) Chain() types.Chain { return types.ChainEthereum }

// ChainID returns the connected network's chain ID.
func (c *EthClient) ChainID() int64 {
	return c.chainID.Int64()
}

// GetBalance returns the balance of an address in ETH.
func (c *EthClient) GetBalance(ctx context.Context, address string) (*big.Float, error) {
	if !common.IsHexAddress(address) {
		return nil, apperrors.Malformed("invalid ethereum address: " + address)
	}

	var wei *big.Int
	err := withRetry(ctx, "eth get balance", func() error {
		var inner error
		wei, inner = c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return weiToEth(wei), nil
}

// SendTransaction signs a native value transfer with the given private key
// and broadcasts it, returning the transaction hash.
func (c *EthClient) SendTransaction(ctx context.Context, privateKey []byte, to string, value *big.Float) (string, error) {
	if !common.IsHexAddress(to) {
		return "", apperrors.Malformed("invalid recipient address: " + to)
	}

	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", apperrors.DerivationError("invalid signing key: " + err.Error())
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	toAddr := common.HexToAddress(to)
	wei := ethToWei(value)

	var hash string
	err = withRetry(ctx, "eth send transaction", func() error {
		nonce, inner := c.client.PendingNonceAt(ctx, from)
		if inner != nil {
			return inner
		}
		gasPrice, inner := c.client.SuggestGasPrice(ctx)
		if inner != nil {
			return inner
		}

		tx := ethtypes.NewTransaction(nonce, toAddr, wei, 21000, gasPrice, nil)
		signed, inner := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), key)
		if inner != nil {
			return permanent(apperrors.DerivationError("failed to sign transaction: " + inner.Error()))
		}

		if inner := c.client.SendTransaction(ctx, signed); inner != nil {
			return inner
		}
		hash = signed.Hash().Hex()
		return nil
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Sign produces an EIP-191 personal-message signature over msg.
func (c *EthClient) Sign(ctx context.Context, privateKey []byte, msg []byte) (string, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", apperrors.DerivationError("invalid signing key: " + err.Error())
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	digest := crypto.Keccak256([]byte(prefixed))

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", apperrors.DerivationError("failed to sign message: " + err.Error())
	}
	// Shift recovery id to the 27/28 convention wallets expect.
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

// TransactionStatus reports the on-chain status of a transaction hash.
// A missing receipt means not yet mined and stays pending; transport
// failures surface as upstream errors rather than a false pending.
func (c *EthClient) TransactionStatus(ctx context.Context, hash string) (types.ActivityStatus, error) {
	var status types.ActivityStatus
	err := withRetry(ctx, "eth transaction receipt", func() error {
		receipt, inner := c.client.TransactionReceipt(ctx, common.HexToHash(hash))
		if errors.Is(inner, ethereum.NotFound) {
			status = types.StatusPending
			return nil
		}
		if inner != nil {
			return inner
		}
		if receipt.Status == ethtypes.ReceiptStatusSuccessful {
			status = types.StatusConfirmed
		} else {
			status = types.StatusFailed
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// Close closes the client connection.
func (c *EthClient) Close() {
	c.client.Close()
}

func weiToEth(wei *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEth)
}

func ethToWei(eth *big.Float) *big.Int {
	if eth == nil {
		return big.NewInt(0)
	}
	wei, _ := new(big.Float).Mul(eth, weiPerEth).Int(nil)
	return wei
}
