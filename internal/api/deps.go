package api

import (
	"context"
	"math/big"

	"github.com/ward-wallet/ward-wallet/internal/app"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// WalletService is the subset of app.WalletService used by the API layer.
// It is an interface to allow handler-level unit tests without a database
// or live chain clients.
type WalletService interface {
	CreateWallet(ctx context.Context, req *app.CreateWalletRequest) (*app.CreateWalletResponse, error)
	CreateSession(ctx context.Context, address string, chainID int64, origin string) (*types.Session, error)

	GetBalance(ctx context.Context, sess *types.Session) (*big.Float, error)
	Sign(ctx context.Context, sess *types.Session, msg []byte) (string, error)
	SendTransaction(ctx context.Context, sess *types.Session, tx *types.ProposedTransaction) (string, error)

	Activities(ctx context.Context, address string) ([]*types.ActivityRecord, error)
	GetPolicy(ctx context.Context, address string) (*types.PolicySnapshot, error)
	UpdatePolicy(ctx context.Context, snapshot *types.PolicySnapshot) error
}
