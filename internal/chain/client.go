package chain

import (
	"context"
	"math/big"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// Client is the per-chain node interface. All values are in native display
// units (ETH or SOL); each implementation converts at the wire boundary.
type Client interface {
	Chain() types.Chain
	GetBalance(ctx context.Context, address string) (*big.Float, error)
	SendTransaction(ctx context.Context, privateKey []byte, to string, value *big.Float) (string, error)
	Sign(ctx context.Context, privateKey []byte, msg []byte) (string, error)
	TransactionStatus(ctx context.Context, hash string) (types.ActivityStatus, error)
}

// Registry routes requests to the client for a given chain.
type Registry struct {
	clients map[types.Chain]Client
}

// NewRegistry builds a registry over the given clients.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[types.Chain]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Chain()] = c
	}
	return r
}

// ForChain returns the client for chain, or chain_not_supported.
func (r *Registry) ForChain(chain types.Chain) (Client, error) {
	c, ok := r.clients[chain]
	if !ok {
		return nil, apperrors.ChainNotSupported(string(chain))
	}
	return c, nil
}
