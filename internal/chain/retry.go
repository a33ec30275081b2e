// Package chain talks to upstream blockchain nodes. Transient RPC failures
// are retried with exponential backoff; policy denials and malformed
// requests are never retried.
package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
)

const rpcMaxRetries = 3

// rpcInitialInterval is a var so tests can shorten the wait.
var rpcInitialInterval = time.Second

// withRetry runs fn against an upstream node, retrying transient failures
// up to rpcMaxRetries times at 1s, 2s, 4s. If every attempt fails the
// caller gets an upstream_unavailable error. Errors wrapped with
// backoff.Permanent abort immediately and keep their original code.
func withRetry(ctx context.Context, op string, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = rpcInitialInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, rpcMaxRetries), ctx)

	err := backoff.Retry(fn, policy)
	if err == nil {
		return nil
	}
	if _, ok := apperrors.IsAppError(err); ok {
		return err
	}
	return apperrors.UpstreamUnavailable(op + ": " + err.Error())
}

// permanent marks an error as non-retryable for withRetry.
func permanent(err error) error {
	return backoff.Permanent(err)
}
