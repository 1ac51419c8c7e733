package domain

import "time"

// ContractRefs holds the deployed contract and token addresses the client
// talks to. Supplied by configuration, never mutated at runtime.
type ContractRefs struct {
	Oracle      string   `yaml:"oracle" json:"oracle"`
	Pool        string   `yaml:"pool" json:"pool"`
	Token       string   `yaml:"token" json:"token"`
	USDC        string   `yaml:"usdc" json:"usdc"`
	LiquidNodes []string `yaml:"liquid_nodes" json:"liquid_nodes"`
}

// OracleData is the oracle's published parameters.
type OracleData struct {
	FairPrice int64  `json:"fair_price"`
	RiskBps   uint32 `json:"risk_bps"`
	Updater   string `json:"updater,omitempty"`
}

// PoolReserves is the AMM pool's reserve state.
type PoolReserves struct {
	USDC    int64 `json:"usdc"`
	Token   int64 `json:"token"`
	TotalLP int64 `json:"total_lp"`
}

// PoolStats is the pool's cumulative volume counters.
type PoolStats struct {
	TotalBought int64 `json:"total_bought"`
	TotalSold   int64 `json:"total_sold"`
	TotalFees   int64 `json:"total_fees"`
}

// UserBalances is the bound user's holdings.
type UserBalances struct {
	USDC     int64 `json:"usdc"`
	Token    int64 `json:"token"`
	LPShares int64 `json:"lp_shares"`
}

// LiquidNodeInfo is one auxiliary liquidity account and its holdings.
type LiquidNodeInfo struct {
	Address string `json:"address"`
	USDC    int64  `json:"usdc"`
	Token   int64  `json:"token"`
}

// Snapshot is the consolidated application-visible view of the remote
// state. Each field carries its own freshness timestamp: a failed refresh
// leaves the prior value (and prior timestamp) in place, it never
// invalidates the rest of the snapshot.
type Snapshot struct {
	Oracle   *OracleData      `json:"oracle,omitempty"`
	Reserves *PoolReserves    `json:"reserves,omitempty"`
	Stats    *PoolStats       `json:"stats,omitempty"`
	User     *UserBalances    `json:"user,omitempty"`
	Nodes    []LiquidNodeInfo `json:"nodes,omitempty"`

	OracleAt   time.Time `json:"oracle_at,omitempty"`
	ReservesAt time.Time `json:"reserves_at,omitempty"`
	StatsAt    time.Time `json:"stats_at,omitempty"`
	UserAt     time.Time `json:"user_at,omitempty"`
	NodesAt    time.Time `json:"nodes_at,omitempty"`

	BuiltAt time.Time `json:"built_at"`
}

// QuoteDirection selects the estimate path.
type QuoteDirection string

const (
	QuoteBuy  QuoteDirection = "buy"
	QuoteSell QuoteDirection = "sell"
)

// SwapQuote is a speculative estimate for a prospective trade. Never
// binding; the executed amount may differ.
type SwapQuote struct {
	In       int64  `json:"in"`
	Out      int64  `json:"out"`
	PoolPart int64  `json:"pool_part,omitempty"`
	NodePart int64  `json:"node_part,omitempty"`
	FeeBps   uint32 `json:"fee_bps,omitempty"`
}
