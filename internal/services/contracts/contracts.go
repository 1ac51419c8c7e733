// Package contracts exposes typed bindings for every oracle, pool and
// token operation the client performs. Each mutation is a thin
// parameterization of the lifecycle manager's state machine; each read
// goes through the read-only simulation path.
package contracts

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/services/lifecycle"
)

// Caller is the slice of the lifecycle manager the bindings need.
type Caller interface {
	Execute(ctx context.Context, source string, op domain.Invocation) (*lifecycle.Result, error)
	ReadCall(ctx context.Context, op domain.Invocation) (*domain.ScVal, error)
}

// Service binds the configured contract addresses to a lifecycle manager.
type Service struct {
	caller Caller
	refs   domain.ContractRefs
	logger *zap.Logger
}

// NewService creates the contract bindings.
func NewService(caller Caller, refs domain.ContractRefs, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{caller: caller, refs: refs, logger: logger}
}

// Refs returns the bound contract addresses.
func (s *Service) Refs() domain.ContractRefs {
	return s.refs
}

// FairPrice reads the oracle's current fair price in base units.
func (s *Service) FairPrice(ctx context.Context) (int64, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Oracle, Method: "fair_price"})
	if err != nil {
		return 0, err
	}
	return ret.AsI128()
}

// DefaultRisk reads the oracle's default risk in basis points.
func (s *Service) DefaultRisk(ctx context.Context) (uint32, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Oracle, Method: "default_risk"})
	if err != nil {
		return 0, err
	}
	return ret.AsU32()
}

// OracleUpdater reads the address authorized to push oracle updates.
func (s *Service) OracleUpdater(ctx context.Context) (string, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Oracle, Method: "updater"})
	if err != nil {
		return "", err
	}
	return ret.AsAddress()
}

// OracleData reads fair price and risk concurrently.
func (s *Service) OracleData(ctx context.Context) (domain.OracleData, error) {
	var data domain.OracleData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		price, err := s.FairPrice(gctx)
		if err != nil {
			return err
		}
		data.FairPrice = price
		return nil
	})
	g.Go(func() error {
		risk, err := s.DefaultRisk(gctx)
		if err != nil {
			return err
		}
		data.RiskBps = risk
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.OracleData{}, err
	}
	return data, nil
}

// GetReserves reads the pool's reserves and total LP shares.
func (s *Service) GetReserves(ctx context.Context) (domain.PoolReserves, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Pool, Method: "get_reserves"})
	if err != nil {
		return domain.PoolReserves{}, err
	}
	usdc, token, err := ret.AsI128Pair()
	if err != nil {
		return domain.PoolReserves{}, err
	}

	totalRet, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Pool, Method: "get_total_lp_shares"})
	if err != nil {
		return domain.PoolReserves{}, err
	}
	totalLP, err := totalRet.AsI128()
	if err != nil {
		return domain.PoolReserves{}, err
	}

	return domain.PoolReserves{USDC: usdc, Token: token, TotalLP: totalLP}, nil
}

// GetStats reads the pool's cumulative bought/sold/fees counters.
func (s *Service) GetStats(ctx context.Context) (domain.PoolStats, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Pool, Method: "get_stats"})
	if err != nil {
		return domain.PoolStats{}, err
	}
	bought, sold, fees, err := ret.AsI128Triple()
	if err != nil {
		return domain.PoolStats{}, err
	}
	return domain.PoolStats{TotalBought: bought, TotalSold: sold, TotalFees: fees}, nil
}

// GetLiquidNodes reads the registered liquidity node addresses.
func (s *Service) GetLiquidNodes(ctx context.Context) ([]string, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{Contract: s.refs.Pool, Method: "get_liquid_nodes"})
	if err != nil {
		return nil, err
	}
	return ret.AsAddressVec()
}

// GetLpShares reads a provider's LP share balance.
func (s *Service) GetLpShares(ctx context.Context, provider string) (int64, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "get_lp_shares",
		Args:     []domain.ScVal{domain.AddressVal(provider)},
	})
	if err != nil {
		return 0, err
	}
	return ret.AsI128()
}

// RawBalance reads a token balance without any normalization. The balance
// resolver layers the trustline-missing handling on top.
func (s *Service) RawBalance(ctx context.Context, token, holder string) (int64, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{
		Contract: token,
		Method:   "balance",
		Args:     []domain.ScVal{domain.AddressVal(holder)},
	})
	if err != nil {
		return 0, err
	}
	return ret.AsI128()
}

// QuoteSwapSell asks the pool to price a prospective sell against its
// actual reserve curve.
func (s *Service) QuoteSwapSell(ctx context.Context, tokenIn int64) (domain.SwapQuote, error) {
	ret, err := s.caller.ReadCall(ctx, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "quote_swap_sell",
		Args:     []domain.ScVal{domain.I128Val(tokenIn)},
	})
	if err != nil {
		return domain.SwapQuote{}, err
	}
	return decodeSwapQuote(ret, tokenIn)
}

// decodeSwapQuote unpacks the pool's quote struct:
// (usdc_out i128, total_fee_bps u32, from_pool i128, from_liquid_nodes i128).
func decodeSwapQuote(ret *domain.ScVal, tokenIn int64) (domain.SwapQuote, error) {
	if ret == nil || ret.Type != domain.ScValVec || len(ret.Vec) != 4 {
		return domain.SwapQuote{}, &domain.ProtocolError{Detail: "malformed swap quote"}
	}
	out, err := ret.Vec[0].AsI128()
	if err != nil {
		return domain.SwapQuote{}, err
	}
	feeBps, err := ret.Vec[1].AsU32()
	if err != nil {
		return domain.SwapQuote{}, err
	}
	fromPool, err := ret.Vec[2].AsI128()
	if err != nil {
		return domain.SwapQuote{}, err
	}
	fromNodes, err := ret.Vec[3].AsI128()
	if err != nil {
		return domain.SwapQuote{}, err
	}
	return domain.SwapQuote{
		In:       tokenIn,
		Out:      out,
		PoolPart: fromPool,
		NodePart: fromNodes,
		FeeBps:   feeBps,
	}, nil
}

// UpdateOracle pushes new fair price and risk values. Only the authorized
// updater account will pass the contract's check.
func (s *Service) UpdateOracle(ctx context.Context, updater string, newFairPrice int64, newRiskBps uint32) error {
	if newFairPrice <= 0 {
		return errors.Wrap(domain.ErrInvalidAmount, "fair price must be positive")
	}
	_, err := s.caller.Execute(ctx, updater, domain.Invocation{
		Contract: s.refs.Oracle,
		Method:   "update",
		Args:     []domain.ScVal{domain.I128Val(newFairPrice), domain.U32Val(newRiskBps)},
	})
	return err
}

// SwapBuy spends usdcIn to mint pool tokens at the oracle's fair price.
// Returns the minted amount in base units.
func (s *Service) SwapBuy(ctx context.Context, buyer string, usdcIn int64) (int64, error) {
	if usdcIn <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidAmount, "swap amount must be positive")
	}
	res, err := s.caller.Execute(ctx, buyer, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "swap_buy",
		Args:     []domain.ScVal{domain.AddressVal(buyer), domain.I128Val(usdcIn)},
	})
	if err != nil {
		return 0, err
	}
	return res.ReturnValue.AsI128()
}

// SwapSell sells tokenIn against the pool's reserve curve. Returns the
// USDC paid out in base units.
func (s *Service) SwapSell(ctx context.Context, seller string, tokenIn int64) (int64, error) {
	if tokenIn <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidAmount, "swap amount must be positive")
	}
	res, err := s.caller.Execute(ctx, seller, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "swap_sell",
		Args:     []domain.ScVal{domain.AddressVal(seller), domain.I128Val(tokenIn)},
	})
	if err != nil {
		return 0, err
	}
	return res.ReturnValue.AsI128()
}

// AddLiquidity deposits both assets and returns the LP shares minted.
func (s *Service) AddLiquidity(ctx context.Context, provider string, usdcIn, tokenIn int64) (int64, error) {
	if usdcIn <= 0 || tokenIn <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidAmount, "liquidity amounts must be positive")
	}
	res, err := s.caller.Execute(ctx, provider, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "add_liquidity",
		Args: []domain.ScVal{
			domain.AddressVal(provider),
			domain.I128Val(usdcIn),
			domain.I128Val(tokenIn),
		},
	})
	if err != nil {
		return 0, err
	}
	return res.ReturnValue.AsI128()
}

// RemoveLiquidity burns LP shares and returns the (usdc, token) amounts
// withdrawn.
func (s *Service) RemoveLiquidity(ctx context.Context, provider string, lpShares int64) (int64, int64, error) {
	if lpShares <= 0 {
		return 0, 0, errors.Wrap(domain.ErrInvalidAmount, "lp shares must be positive")
	}
	res, err := s.caller.Execute(ctx, provider, domain.Invocation{
		Contract: s.refs.Pool,
		Method:   "remove_liquidity",
		Args:     []domain.ScVal{domain.AddressVal(provider), domain.I128Val(lpShares)},
	})
	if err != nil {
		return 0, 0, err
	}
	return res.ReturnValue.AsI128Pair()
}
