package balance

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
)

type fakeReader struct {
	balance int64
	err     error
}

func (f *fakeReader) RawBalance(ctx context.Context, token, holder string) (int64, error) {
	return f.balance, f.err
}

func TestGetBalance(t *testing.T) {
	r := NewResolver(&fakeReader{balance: 49_005_000}, zap.NewNop())

	bal, err := r.GetBalance(context.Background(), "CTOKEN", "GHOLDER")
	require.NoError(t, err)
	assert.Equal(t, int64(49_005_000), bal)
}

func TestGetBalanceMissingTrustlineIsZero(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sentinel", domain.ErrTrustlineMissing},
		{"wrapped sentinel", errors.Wrap(domain.ErrTrustlineMissing, "read balance")},
		{"token contract code", &domain.OnChainError{
			Contract: "CTOKEN", Kind: domain.KindToken, Code: domain.TokenErrBalanceMissing,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeReader{err: tt.err}, zap.NewNop())
			bal, err := r.GetBalance(context.Background(), "CTOKEN", "GHOLDER")
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestGetBalanceOtherFailuresPropagate(t *testing.T) {
	cause := &domain.TransientError{Err: errors.New("connection reset")}
	r := NewResolver(&fakeReader{err: cause}, zap.NewNop())

	_, err := r.GetBalance(context.Background(), "CTOKEN", "GHOLDER")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err), "a transient read failure must not masquerade as a zero balance")
}

func TestHasTrustline(t *testing.T) {
	t.Run("established", func(t *testing.T) {
		r := NewResolver(&fakeReader{balance: 0}, zap.NewNop())
		ok, err := r.HasTrustline(context.Background(), "CTOKEN", "GHOLDER")
		require.NoError(t, err)
		assert.True(t, ok, "a zero balance still means the trustline exists")
	})

	t.Run("missing", func(t *testing.T) {
		r := NewResolver(&fakeReader{err: domain.ErrTrustlineMissing}, zap.NewNop())
		ok, err := r.HasTrustline(context.Background(), "CTOKEN", "GHOLDER")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other failure propagates", func(t *testing.T) {
		r := NewResolver(&fakeReader{err: errors.New("boom")}, zap.NewNop())
		_, err := r.HasTrustline(context.Background(), "CTOKEN", "GHOLDER")
		require.Error(t, err)
	})
}
