// Package balance resolves fungible balances, absorbing the ledger's
// distinction between "no trust relationship" and "zero balance": both are
// presented as 0 to callers. HasTrustline keeps the distinction for code
// that needs it.
package balance

import (
	"context"

	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
)

// Reader is the raw balance read the resolver wraps.
type Reader interface {
	RawBalance(ctx context.Context, token, holder string) (int64, error)
}

// Resolver normalizes balance reads.
type Resolver struct {
	reader Reader
	logger *zap.Logger
}

// NewResolver creates a balance resolver.
func NewResolver(reader Reader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{reader: reader, logger: logger}
}

// GetBalance returns the holder's balance in base units. A
// missing-trustline failure yields 0; every other failure propagates
// unmodified.
func (r *Resolver) GetBalance(ctx context.Context, token, holder string) (int64, error) {
	bal, err := r.reader.RawBalance(ctx, token, holder)
	if err != nil {
		if domain.IsTrustlineMissing(err) {
			r.logger.Debug("no trustline, reporting zero balance",
				zap.String("token", token),
				zap.String("holder", holder),
			)
			return 0, nil
		}
		return 0, err
	}
	return bal, nil
}

// HasTrustline reports whether the holder has established a trust
// relationship for the token. Returns false only for the
// missing-relationship class; other failures propagate.
func (r *Resolver) HasTrustline(ctx context.Context, token, holder string) (bool, error) {
	_, err := r.reader.RawBalance(ctx, token, holder)
	if err != nil {
		if domain.IsTrustlineMissing(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
