package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel failures surfaced by the client.
var (
	// ErrInvalidAmount reports a non-numeric or out-of-range amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSignRejected reports that the signing capability declined the
	// envelope. Never retried automatically.
	ErrSignRejected = errors.New("signing rejected")

	// ErrTrustlineMissing marks the "no trust relationship established"
	// failure class. It is normalized to a zero balance at the balance
	// resolver boundary and never surfaced past it.
	ErrTrustlineMissing = errors.New("trustline missing")
)

// SimulationError is a remote simulation rejection. The operation never
// reached the network.
type SimulationError struct {
	Detail string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %s", e.Detail)
}

// SubmissionError is a rejection at the submission endpoint. The envelope
// may or may not have been accepted by the network; callers must re-query
// by hash before resubmitting.
type SubmissionError struct {
	Detail string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s", e.Detail)
}

// ProtocolError reports a malformed response from the ledger RPC.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// TransientError wraps timeouts and connection failures that happened before
// anything reached the ledger. The whole operation is safe to retry from
// scratch.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError is the terminal state of confirmation polling once the retry
// ceiling is exhausted. The submission hash is preserved so the outcome can
// still be recovered with a direct query.
type TimeoutError struct {
	Hash string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("confirmation timed out, outcome unknown (hash %s)", e.Hash)
}

// FailureCategory is the human-readable bucket for an on-chain rejection.
type FailureCategory string

const (
	CategoryInsufficientLiquidity FailureCategory = "insufficient liquidity"
	CategoryInvalidAmount         FailureCategory = "invalid amount"
	CategoryTransferFailed        FailureCategory = "transfer failed"
	CategoryNoLiquidity           FailureCategory = "no liquidity available"
	CategoryInvalidLpShares       FailureCategory = "invalid lp shares"
	CategoryUnauthorized          FailureCategory = "unauthorized"
	CategoryTrustline             FailureCategory = "trustline missing"
	CategoryUnknown               FailureCategory = "unknown contract failure"
)

// Contract error codes reported by the pool.
const (
	PoolErrInsufficientLiquidity uint32 = 1
	PoolErrInvalidAmount         uint32 = 2
	PoolErrTransferFailed        uint32 = 3
	PoolErrNoLiquidityAvailable  uint32 = 4
	PoolErrInvalidLpShares       uint32 = 5
	PoolErrUnauthorized          uint32 = 6
	PoolErrAlreadyRegistered     uint32 = 7
	PoolErrNotRegistered         uint32 = 8
)

// OracleErrUnauthorized is the oracle's only contract error.
const OracleErrUnauthorized uint32 = 1

// TokenErrBalanceMissing is the token failure raised when the holder never
// established a trustline for the asset.
const TokenErrBalanceMissing uint32 = 13

// ContractKind tells which code space an on-chain rejection belongs to.
// The oracle and the pool both use small integer codes, so the raw number
// alone is ambiguous.
type ContractKind string

const (
	KindPool    ContractKind = "pool"
	KindOracle  ContractKind = "oracle"
	KindToken   ContractKind = "token"
	KindUnknown ContractKind = "unknown"
)

// OnChainError is a decoded contract-level rejection. The raw code is kept
// for diagnostics; Category maps it to a display bucket.
type OnChainError struct {
	Contract string
	Kind     ContractKind
	Code     uint32
}

func (e *OnChainError) Error() string {
	return fmt.Sprintf("contract %s rejected operation: %s (code %d)", e.Contract, e.Category(), e.Code)
}

// Category buckets the raw code for display.
func (e *OnChainError) Category() FailureCategory {
	switch e.Kind {
	case KindOracle:
		if e.Code == OracleErrUnauthorized {
			return CategoryUnauthorized
		}
		return CategoryUnknown
	case KindToken:
		if e.Code == TokenErrBalanceMissing {
			return CategoryTrustline
		}
		return CategoryUnknown
	}

	switch e.Code {
	case PoolErrInsufficientLiquidity:
		return CategoryInsufficientLiquidity
	case PoolErrInvalidAmount:
		return CategoryInvalidAmount
	case PoolErrTransferFailed:
		return CategoryTransferFailed
	case PoolErrNoLiquidityAvailable:
		return CategoryNoLiquidity
	case PoolErrInvalidLpShares:
		return CategoryInvalidLpShares
	case PoolErrUnauthorized:
		return CategoryUnauthorized
	default:
		return CategoryUnknown
	}
}

// IsTrustlineMissing reports whether err belongs to the missing-trustline
// failure class, either as the sentinel or as the token contract's
// balance-missing code.
func IsTrustlineMissing(err error) bool {
	if errors.Is(err, ErrTrustlineMissing) {
		return true
	}
	var onchain *OnChainError
	if errors.As(err, &onchain) {
		return onchain.Code == TokenErrBalanceMissing
	}
	return false
}

// IsTransient reports whether err is safe to retry from scratch because
// nothing reached the ledger.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
