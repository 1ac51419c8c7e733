// Package statesync maintains the consolidated snapshot of remote state.
// Every cycle fans out the independent reads concurrently, waits for each
// to settle, and publishes one new snapshot atomically. A failed read
// leaves the prior cycle's value for that field in place; it never aborts
// the cycle or invalidates the other fields.
package statesync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/observability"
)

// DefaultInterval is how often the snapshot is rebuilt.
const DefaultInterval = 30 * time.Second

// Reads is the slice of the contract bindings the synchronizer needs.
type Reads interface {
	OracleData(ctx context.Context) (domain.OracleData, error)
	OracleUpdater(ctx context.Context) (string, error)
	GetReserves(ctx context.Context) (domain.PoolReserves, error)
	GetStats(ctx context.Context) (domain.PoolStats, error)
	GetLiquidNodes(ctx context.Context) ([]string, error)
	GetLpShares(ctx context.Context, provider string) (int64, error)
	Refs() domain.ContractRefs
}

// Balances is the normalized balance read.
type Balances interface {
	GetBalance(ctx context.Context, token, holder string) (int64, error)
}

// Synchronizer owns the published snapshot.
type Synchronizer struct {
	reads       Reads
	balances    Balances
	userAddress string
	interval    time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger

	// cycleMu serializes refresh cycles so overlapping triggers cannot
	// issue duplicate concurrent reads.
	cycleMu sync.Mutex

	mu   sync.RWMutex
	snap domain.Snapshot

	refreshCh chan struct{}
}

// New creates a synchronizer. userAddress may be empty, in which case no
// user balances are fetched. metrics may be nil.
func New(reads Reads, balances Balances, userAddress string, interval time.Duration,
	metrics *observability.Metrics, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Synchronizer{
		reads:       reads,
		balances:    balances,
		userAddress: userAddress,
		interval:    interval,
		metrics:     metrics,
		logger:      logger,
		refreshCh:   make(chan struct{}, 1),
	}
}

// Snapshot returns the last published snapshot. Always a copy; callers
// can never observe a cycle in progress.
func (s *Synchronizer) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// TriggerRefresh schedules an extra cycle without blocking. Used after a
// confirmed mutation.
func (s *Synchronizer) TriggerRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// RefreshNow runs one full cycle synchronously and returns once the new
// snapshot is published.
func (s *Synchronizer) RefreshNow(ctx context.Context) {
	s.refresh(ctx)
}

// Run refreshes once at startup, then on every interval tick and on every
// trigger, until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("state synchronizer stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		case <-s.refreshCh:
			s.refresh(ctx)
		}
	}
}

func (s *Synchronizer) refresh(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	prior := s.Snapshot()
	next := prior
	now := time.Now().UTC()

	var (
		stagingMu sync.Mutex
		g, gctx   = errgroup.WithContext(ctx)
	)

	// Every read settles on its own; closures record failures instead of
	// returning them so one slow or failing field never cancels the rest.
	g.Go(func() error {
		data, err := s.reads.OracleData(gctx)
		if err != nil {
			s.readFailed("oracle", err)
			return nil
		}
		if updater, err := s.reads.OracleUpdater(gctx); err == nil {
			data.Updater = updater
		}
		stagingMu.Lock()
		next.Oracle = &data
		next.OracleAt = now
		stagingMu.Unlock()
		s.metrics.ObserveRead("oracle", "ok")
		return nil
	})

	g.Go(func() error {
		reserves, err := s.reads.GetReserves(gctx)
		if err != nil {
			s.readFailed("reserves", err)
			return nil
		}
		stagingMu.Lock()
		next.Reserves = &reserves
		next.ReservesAt = now
		stagingMu.Unlock()
		s.metrics.ObserveRead("reserves", "ok")
		return nil
	})

	g.Go(func() error {
		stats, err := s.reads.GetStats(gctx)
		if err != nil {
			s.readFailed("stats", err)
			return nil
		}
		stagingMu.Lock()
		next.Stats = &stats
		next.StatsAt = now
		stagingMu.Unlock()
		s.metrics.ObserveRead("stats", "ok")
		return nil
	})

	if s.userAddress != "" {
		g.Go(func() error {
			user, err := s.fetchUserBalances(gctx)
			if err != nil {
				s.readFailed("user", err)
				return nil
			}
			stagingMu.Lock()
			next.User = &user
			next.UserAt = now
			stagingMu.Unlock()
			s.metrics.ObserveRead("user", "ok")
			return nil
		})
	}

	g.Go(func() error {
		nodes, ok := s.fetchLiquidNodes(gctx, prior.Nodes)
		if !ok {
			return nil
		}
		stagingMu.Lock()
		next.Nodes = nodes
		next.NodesAt = now
		stagingMu.Unlock()
		s.metrics.ObserveRead("nodes", "ok")
		return nil
	})

	_ = g.Wait()

	next.BuiltAt = now

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	s.logger.Debug("snapshot published", zap.Time("built_at", now))
}

func (s *Synchronizer) fetchUserBalances(ctx context.Context) (domain.UserBalances, error) {
	refs := s.reads.Refs()
	var user domain.UserBalances

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := s.balances.GetBalance(gctx, refs.USDC, s.userAddress)
		if err != nil {
			return err
		}
		user.USDC = bal
		return nil
	})
	g.Go(func() error {
		bal, err := s.balances.GetBalance(gctx, refs.Token, s.userAddress)
		if err != nil {
			return err
		}
		user.Token = bal
		return nil
	})
	g.Go(func() error {
		shares, err := s.reads.GetLpShares(gctx, s.userAddress)
		if err != nil {
			return err
		}
		user.LPShares = shares
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.UserBalances{}, err
	}
	return user, nil
}

// fetchLiquidNodes enumerates the pool's nodes and reads both balances per
// node. A failed balance read keeps the prior cycle's value for that one
// node; a failed enumeration keeps the prior node list entirely.
func (s *Synchronizer) fetchLiquidNodes(ctx context.Context, prior []domain.LiquidNodeInfo) ([]domain.LiquidNodeInfo, bool) {
	addrs, err := s.reads.GetLiquidNodes(ctx)
	if err != nil {
		s.readFailed("nodes", err)
		return nil, false
	}

	priorByAddr := make(map[string]domain.LiquidNodeInfo, len(prior))
	for _, n := range prior {
		priorByAddr[n.Address] = n
	}

	refs := s.reads.Refs()
	nodes := make([]domain.LiquidNodeInfo, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		nodes[i] = domain.LiquidNodeInfo{Address: addr}
		if prev, ok := priorByAddr[addr]; ok {
			nodes[i] = prev
		}

		node := &nodes[i]
		g.Go(func() error {
			if bal, err := s.balances.GetBalance(gctx, refs.USDC, node.Address); err == nil {
				node.USDC = bal
			} else {
				s.readFailed("node_usdc", err)
			}
			if bal, err := s.balances.GetBalance(gctx, refs.Token, node.Address); err == nil {
				node.Token = bal
			} else {
				s.readFailed("node_token", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return nodes, true
}

func (s *Synchronizer) readFailed(field string, err error) {
	s.metrics.ObserveRead(field, "error")
	s.logger.Warn("snapshot read failed", zap.String("field", field), zap.Error(err))
}
