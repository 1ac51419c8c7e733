// Package internal wires the swap client: RPC client, lifecycle manager,
// contract bindings, quote estimator, balance resolver and state
// synchronizer, behind one App facade consumed by the web layer and by
// embedding programs.
package internal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dobfi/dobswap/config"
	"github.com/dobfi/dobswap/internal/clients"
	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/observability"
	"github.com/dobfi/dobswap/internal/services/balance"
	"github.com/dobfi/dobswap/internal/services/contracts"
	"github.com/dobfi/dobswap/internal/services/lifecycle"
	"github.com/dobfi/dobswap/internal/services/quote"
	"github.com/dobfi/dobswap/internal/services/signer"
	"github.com/dobfi/dobswap/internal/services/statesync"
	"github.com/dobfi/dobswap/internal/storage/submissions"
	"github.com/dobfi/dobswap/internal/web"
)

// App is the assembled swap client.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	rpc      *clients.SorobanClient
	journal  *submissions.Journal
	manager  *lifecycle.Manager
	bindings *contracts.Service
	quotes   *quote.Estimator
	balances *balance.Resolver
	sync     *statesync.Synchronizer
	registry *prometheus.Registry
}

// New assembles the client. sgn may be nil for read-only deployments;
// mutations then fail with a signing rejection.
func New(cfg config.Config, sgn signer.Signer, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rpc, err := clients.NewSorobanClient(cfg.RPCEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "create rpc client")
	}

	journal, err := submissions.NewJournal(cfg.WALDir)
	if err != nil {
		return nil, errors.Wrap(err, "open submission journal")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	if sgn == nil {
		sgn = rejectingSigner{}
	}

	manager := lifecycle.NewManager(rpc, sgn, journal, cfg.Contracts, metrics, logger, lifecycle.Config{
		NetworkPassphrase:      cfg.NetworkPassphrase,
		ConfirmInitialInterval: cfg.ConfirmInitialInterval,
		ConfirmMaxInterval:     cfg.ConfirmMaxInterval,
		ConfirmCeiling:         cfg.ConfirmCeiling,
	})

	bindings := contracts.NewService(manager, cfg.Contracts, logger)
	balances := balance.NewResolver(bindings, logger)
	quotes := quote.NewEstimator(bindings, logger)
	synchronizer := statesync.New(bindings, balances, cfg.UserAddress, cfg.RefreshInterval, metrics, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		rpc:      rpc,
		journal:  journal,
		manager:  manager,
		bindings: bindings,
		quotes:   quotes,
		balances: balances,
		sync:     synchronizer,
		registry: registry,
	}, nil
}

// Run verifies the endpoint, reports any unresolved journaled submissions,
// then runs the synchronizer and the web server until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.rpc.GetHealth(ctx); err != nil {
		return errors.Wrap(err, "rpc health check")
	}
	info, err := a.rpc.GetNetwork(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve network identity")
	}
	if info.Passphrase != a.cfg.NetworkPassphrase {
		return errors.Errorf("endpoint belongs to network %q, config expects %q",
			info.Passphrase, a.cfg.NetworkPassphrase)
	}

	a.recoverUnresolved(ctx)

	server := web.NewServer(a.cfg.WebAddr, a, a.registry, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sync.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	a.logger.Info("swap client running",
		zap.String("network", a.cfg.Network),
		zap.String("rpc", a.cfg.RPCEndpoint),
		zap.String("web", a.cfg.WebAddr),
	)
	return g.Wait()
}

// Close releases the submission journal.
func (a *App) Close() error {
	return a.journal.Close()
}

// recoverUnresolved re-queries submissions that were in flight when a
// previous process died. The journaled hash is the only recovery handle.
func (a *App) recoverUnresolved(ctx context.Context) {
	for _, rec := range a.journal.Unresolved() {
		res, err := a.manager.Outcome(ctx, rec.Hash)
		if err != nil {
			a.logger.Warn("journaled submission still unresolved",
				zap.String("hash", rec.Hash),
				zap.String("method", rec.Method),
				zap.Error(err),
			)
			continue
		}
		a.logger.Info("recovered journaled submission outcome",
			zap.String("hash", res.Hash),
			zap.Int64("ledger", res.Ledger),
		)
	}
}

// GetSnapshot returns the current consolidated state view.
func (a *App) GetSnapshot() domain.Snapshot {
	return a.sync.Snapshot()
}

// RefreshNow rebuilds the snapshot synchronously.
func (a *App) RefreshNow(ctx context.Context) {
	a.sync.RefreshNow(ctx)
}

// EstimateQuote computes an advisory quote for the given direction. ok is
// false when no estimate is available.
func (a *App) EstimateQuote(ctx context.Context, direction domain.QuoteDirection, amount int64) (domain.SwapQuote, bool) {
	switch direction {
	case domain.QuoteBuy:
		return a.quotes.BuyQuote(ctx, amount)
	case domain.QuoteSell:
		return a.quotes.SellQuote(ctx, amount)
	default:
		return domain.SwapQuote{}, false
	}
}

// UpdateOracle submits new oracle parameters from the updater account.
func (a *App) UpdateOracle(ctx context.Context, updater string, newFairPrice int64, newRiskBps uint32) error {
	err := a.bindings.UpdateOracle(ctx, updater, newFairPrice, newRiskBps)
	if err == nil {
		a.sync.TriggerRefresh()
	}
	return err
}

// SwapBuy submits a buy and returns the minted token amount in base units.
func (a *App) SwapBuy(ctx context.Context, buyer string, usdcIn int64) (int64, error) {
	out, err := a.bindings.SwapBuy(ctx, buyer, usdcIn)
	if err == nil {
		a.sync.TriggerRefresh()
	}
	return out, err
}

// SwapSell submits a sell and returns the USDC paid out in base units.
func (a *App) SwapSell(ctx context.Context, seller string, tokenIn int64) (int64, error) {
	out, err := a.bindings.SwapSell(ctx, seller, tokenIn)
	if err == nil {
		a.sync.TriggerRefresh()
	}
	return out, err
}

// AddLiquidity deposits both assets and returns minted LP shares.
func (a *App) AddLiquidity(ctx context.Context, provider string, usdcIn, tokenIn int64) (int64, error) {
	out, err := a.bindings.AddLiquidity(ctx, provider, usdcIn, tokenIn)
	if err == nil {
		a.sync.TriggerRefresh()
	}
	return out, err
}

// RemoveLiquidity burns LP shares and returns the withdrawn amounts.
func (a *App) RemoveLiquidity(ctx context.Context, provider string, lpShares int64) (int64, int64, error) {
	usdc, token, err := a.bindings.RemoveLiquidity(ctx, provider, lpShares)
	if err == nil {
		a.sync.TriggerRefresh()
	}
	return usdc, token, err
}

// HasTrustline reports whether holder established a trustline for token.
func (a *App) HasTrustline(ctx context.Context, token, holder string) (bool, error) {
	return a.balances.HasTrustline(ctx, token, holder)
}

// Outcome re-queries a past submission by hash.
func (a *App) Outcome(ctx context.Context, hash string) (*lifecycle.Result, error) {
	return a.manager.Outcome(ctx, hash)
}

// Submissions lists the journaled submission records.
func (a *App) Submissions() []submissions.Record {
	return a.journal.Records()
}

// rejectingSigner backs read-only deployments: every signing attempt is an
// explicit rejection.
type rejectingSigner struct{}

func (rejectingSigner) Sign(context.Context, string, string, string) (string, error) {
	return "", errors.Wrap(domain.ErrSignRejected, "no signing key configured")
}
