package statesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
)

var testRefs = domain.ContractRefs{
	Oracle: "CORACLE",
	Pool:   "CPOOL",
	Token:  "CTOKEN",
	USDC:   "CUSDC",
}

// fakeReads serves scripted contract state; any field's error can be set
// independently to exercise per-field isolation.
type fakeReads struct {
	mu sync.Mutex

	oracle      domain.OracleData
	oracleErr   error
	updater     string
	updaterErr  error
	reserves    domain.PoolReserves
	reservesErr error
	stats       domain.PoolStats
	statsErr    error
	nodes       []string
	nodesErr    error
	lpShares    int64
	lpErr       error
}

func (f *fakeReads) OracleData(ctx context.Context) (domain.OracleData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oracle, f.oracleErr
}

func (f *fakeReads) OracleUpdater(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updater, f.updaterErr
}

func (f *fakeReads) GetReserves(ctx context.Context) (domain.PoolReserves, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserves, f.reservesErr
}

func (f *fakeReads) GetStats(ctx context.Context) (domain.PoolStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.statsErr
}

func (f *fakeReads) GetLiquidNodes(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes, f.nodesErr
}

func (f *fakeReads) GetLpShares(ctx context.Context, provider string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lpShares, f.lpErr
}

func (f *fakeReads) Refs() domain.ContractRefs { return testRefs }

func (f *fakeReads) set(change func(*fakeReads)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change(f)
}

// fakeBalances maps token/holder to a balance; per-key errors model single
// failing accounts.
type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]int64
	errs     map[string]error
}

func balKey(token, holder string) string { return token + "/" + holder }

func (f *fakeBalances) GetBalance(ctx context.Context, token, holder string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := balKey(token, holder)
	if err, ok := f.errs[k]; ok {
		return 0, err
	}
	return f.balances[k], nil
}

func (f *fakeBalances) set(change func(*fakeBalances)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change(f)
}

func healthyReads() *fakeReads {
	return &fakeReads{
		oracle:   domain.OracleData{FairPrice: 10_000_000, RiskBps: 250},
		updater:  "GUPDATER",
		reserves: domain.PoolReserves{USDC: 1_000_000_000, Token: 500_000_000, TotalLP: 750_000_000},
		stats:    domain.PoolStats{TotalBought: 100, TotalSold: 50, TotalFees: 7},
		nodes:    []string{"GNODE1", "GNODE2"},
		lpShares: 42,
	}
}

func healthyBalances() *fakeBalances {
	return &fakeBalances{balances: map[string]int64{
		balKey("CUSDC", "GUSER"):   100,
		balKey("CTOKEN", "GUSER"):  200,
		balKey("CUSDC", "GNODE1"):  11,
		balKey("CTOKEN", "GNODE1"): 12,
		balKey("CUSDC", "GNODE2"):  21,
		balKey("CTOKEN", "GNODE2"): 22,
	}}
}

func TestRefreshBuildsFullSnapshot(t *testing.T) {
	s := New(healthyReads(), healthyBalances(), "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())

	snap := s.Snapshot()
	require.NotNil(t, snap.Oracle)
	assert.Equal(t, int64(10_000_000), snap.Oracle.FairPrice)
	assert.Equal(t, "GUPDATER", snap.Oracle.Updater)
	require.NotNil(t, snap.Reserves)
	assert.Equal(t, int64(1_000_000_000), snap.Reserves.USDC)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, int64(7), snap.Stats.TotalFees)
	require.NotNil(t, snap.User)
	assert.Equal(t, domain.UserBalances{USDC: 100, Token: 200, LPShares: 42}, *snap.User)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, domain.LiquidNodeInfo{Address: "GNODE1", USDC: 11, Token: 12}, snap.Nodes[0])
	assert.False(t, snap.BuiltAt.IsZero())
	assert.Equal(t, snap.BuiltAt, snap.OracleAt)
}

func TestRefreshWithoutUserAddress(t *testing.T) {
	s := New(healthyReads(), healthyBalances(), "", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())

	snap := s.Snapshot()
	assert.Nil(t, snap.User)
	require.NotNil(t, snap.Oracle)
}

func TestFailedFieldKeepsPriorValue(t *testing.T) {
	reads := healthyReads()
	s := New(reads, healthyBalances(), "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())
	first := s.Snapshot()

	// the oracle goes dark, the reserves move
	reads.set(func(f *fakeReads) {
		f.oracleErr = errors.New("oracle unreachable")
		f.reserves.USDC = 2_000_000_000
	})
	s.RefreshNow(context.Background())
	second := s.Snapshot()

	require.NotNil(t, second.Oracle)
	assert.Equal(t, first.Oracle, second.Oracle, "a failed read keeps the prior value")
	assert.Equal(t, first.OracleAt, second.OracleAt, "the stale value keeps its stale timestamp")

	require.NotNil(t, second.Reserves)
	assert.Equal(t, int64(2_000_000_000), second.Reserves.USDC)
	assert.True(t, second.ReservesAt.After(first.ReservesAt))
	assert.True(t, second.BuiltAt.After(first.BuiltAt))
}

func TestUserBalancesAllOrNothing(t *testing.T) {
	reads := healthyReads()
	bals := healthyBalances()
	s := New(reads, bals, "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())
	first := s.Snapshot()

	// one of the three user reads fails; a partially updated balance set
	// would misrepresent the account, so the whole field stays prior
	bals.set(func(f *fakeBalances) {
		f.errs = map[string]error{balKey("CTOKEN", "GUSER"): errors.New("timeout")}
		f.balances[balKey("CUSDC", "GUSER")] = 999
	})
	s.RefreshNow(context.Background())
	second := s.Snapshot()

	require.NotNil(t, second.User)
	assert.Equal(t, first.User, second.User)
	assert.Equal(t, first.UserAt, second.UserAt)
}

func TestNodeEnumerationFailureKeepsPriorList(t *testing.T) {
	reads := healthyReads()
	s := New(reads, healthyBalances(), "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())
	first := s.Snapshot()

	reads.set(func(f *fakeReads) { f.nodesErr = errors.New("pool unreachable") })
	s.RefreshNow(context.Background())
	second := s.Snapshot()

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.NodesAt, second.NodesAt)
}

func TestSingleNodeBalanceFailureKeepsPriorValue(t *testing.T) {
	reads := healthyReads()
	bals := healthyBalances()
	s := New(reads, bals, "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())

	// node 1's usdc read fails while node 2's balances move
	bals.set(func(f *fakeBalances) {
		f.errs = map[string]error{balKey("CUSDC", "GNODE1"): errors.New("timeout")}
		f.balances[balKey("CTOKEN", "GNODE1")] = 120
		f.balances[balKey("CUSDC", "GNODE2")] = 210
	})
	s.RefreshNow(context.Background())
	snap := s.Snapshot()

	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, int64(11), snap.Nodes[0].USDC, "failed read keeps the prior cycle's value")
	assert.Equal(t, int64(120), snap.Nodes[0].Token)
	assert.Equal(t, int64(210), snap.Nodes[1].USDC)
}

func TestNewNodeAppearsWithFreshBalances(t *testing.T) {
	reads := healthyReads()
	bals := healthyBalances()
	s := New(reads, bals, "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())

	reads.set(func(f *fakeReads) { f.nodes = []string{"GNODE1", "GNODE2", "GNODE3"} })
	bals.set(func(f *fakeBalances) {
		f.balances[balKey("CUSDC", "GNODE3")] = 31
		f.balances[balKey("CTOKEN", "GNODE3")] = 32
	})
	s.RefreshNow(context.Background())

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, domain.LiquidNodeInfo{Address: "GNODE3", USDC: 31, Token: 32}, snap.Nodes[2])
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(healthyReads(), healthyBalances(), "GUSER", time.Minute, nil, zap.NewNop())
	s.RefreshNow(context.Background())

	snap := s.Snapshot()
	snap.Oracle.FairPrice = -1 // mutating the returned pointer target is on the caller

	// the published snapshot structure itself is untouched by reassignment
	again := s.Snapshot()
	assert.Equal(t, snap.BuiltAt, again.BuiltAt)
}

func TestRunRespondsToTrigger(t *testing.T) {
	reads := healthyReads()
	s := New(reads, healthyBalances(), "", time.Hour, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// initial refresh
	require.Eventually(t, func() bool {
		return s.Snapshot().Oracle != nil
	}, time.Second, 5*time.Millisecond)
	first := s.Snapshot()

	reads.set(func(f *fakeReads) { f.oracle.FairPrice = 11_000_000 })
	s.TriggerRefresh()

	require.Eventually(t, func() bool {
		return s.Snapshot().BuiltAt.After(first.BuiltAt)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(11_000_000), s.Snapshot().Oracle.FairPrice)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
