// Package lifecycle drives a contract invocation through the ledger's
// asynchronous commit protocol:
//
//	Built -> Simulated -> Assembled -> Signed -> Submitted -> Confirming
//	      -> {Succeeded | Failed | TimedOut}
//
// Transitions are strictly linear. Everything before Submitted is local
// and safe to retry from scratch; at Submitted and later the outcome is
// owned by the network and must only ever be learned by re-querying the
// submission hash.
package lifecycle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/clients"
	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/observability"
	"github.com/dobfi/dobswap/internal/services/signer"
	"github.com/dobfi/dobswap/internal/storage/submissions"
)

// State is one step of the submission state machine.
type State string

const (
	StateBuilt      State = "built"
	StateSimulated  State = "simulated"
	StateAssembled  State = "assembled"
	StateSigned     State = "signed"
	StateSubmitted  State = "submitted"
	StateConfirming State = "confirming"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// ErrNotYetObserved means the network has not seen the hash yet.
var ErrNotYetObserved = errors.New("transaction not yet observed")

// RPC is the slice of the ledger endpoint the manager needs.
type RPC interface {
	GetAccount(ctx context.Context, address string) (clients.Account, error)
	SimulateTransaction(ctx context.Context, envelope string) (clients.SimulateResult, error)
	SendTransaction(ctx context.Context, signedEnvelope string) (clients.SendResult, error)
	GetTransaction(ctx context.Context, hash string) (clients.TxResult, error)
}

// Config tunes the manager.
type Config struct {
	NetworkPassphrase string

	// Confirmation polling: bounded exponential backoff with a hard
	// ceiling, after which the operation ends in TimedOut.
	ConfirmInitialInterval time.Duration
	ConfirmMaxInterval     time.Duration
	ConfirmCeiling         time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConfirmInitialInterval <= 0 {
		c.ConfirmInitialInterval = time.Second
	}
	if c.ConfirmMaxInterval <= 0 {
		c.ConfirmMaxInterval = 10 * time.Second
	}
	if c.ConfirmCeiling <= 0 {
		c.ConfirmCeiling = 90 * time.Second
	}
}

// Result is a terminal success: the hash, the including ledger and the
// decoded return value in base units.
type Result struct {
	Hash        string
	Ledger      int64
	ReturnValue *domain.ScVal
}

// Manager owns every in-flight submission.
type Manager struct {
	rpc     RPC
	signer  signer.Signer
	journal *submissions.Journal
	refs    domain.ContractRefs
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     Config

	mu          sync.Mutex
	sourceLocks map[string]*sync.Mutex
}

// NewManager wires a lifecycle manager. journal and metrics may be nil.
func NewManager(rpc RPC, sgn signer.Signer, journal *submissions.Journal, refs domain.ContractRefs,
	metrics *observability.Metrics, logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Manager{
		rpc:         rpc,
		signer:      sgn,
		journal:     journal,
		refs:        refs,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		sourceLocks: make(map[string]*sync.Mutex),
	}
}

// pending tracks one in-flight submission. Not persisted beyond the
// journal: if the process dies, the journaled hash is the only recovery
// handle.
type pending struct {
	state    State
	envelope *domain.Envelope
	record   *submissions.Record
	hash     string
}

// Execute runs one mutation end to end and blocks until a terminal state.
// The source account's sequence is re-resolved on every call; one mutation
// per source is in flight at a time to keep sequence numbers race-free.
func (m *Manager) Execute(ctx context.Context, source string, op domain.Invocation) (*Result, error) {
	lock := m.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	log := m.logger.With(
		zap.String("contract", op.Contract),
		zap.String("method", op.Method),
		zap.String("source", source),
	)

	p := &pending{}
	if m.journal != nil {
		rec, err := m.journal.Prepare(op.Method, op.Contract, source)
		if err != nil {
			return nil, errors.Wrap(err, "journal submission")
		}
		p.record = rec
	}

	result, err := m.run(ctx, p, source, op, log)
	if err != nil {
		m.metrics.ObserveSubmission(op.Method, string(p.state))
		return nil, err
	}
	m.metrics.ObserveSubmission(op.Method, string(StateSucceeded))
	return result, nil
}

func (m *Manager) run(ctx context.Context, p *pending, source string, op domain.Invocation, log *zap.Logger) (*Result, error) {
	// Built: wrap the intent into an envelope addressed from the freshly
	// resolved account, with a conservative placeholder fee.
	account, err := m.rpc.GetAccount(ctx, source)
	if err != nil {
		m.markFailed(p, err)
		return nil, errors.Wrap(err, "resolve source account")
	}
	p.envelope = &domain.Envelope{
		Source:      source,
		Sequence:    account.Sequence + 1,
		Fee:         domain.PlaceholderFee,
		Passphrase:  m.cfg.NetworkPassphrase,
		TimeoutSecs: domain.DefaultTimeoutSecs,
		Op:          op,
	}
	m.transition(p, StateBuilt, log)

	// Simulated: a failure here is terminal, nothing reached the network.
	encoded, err := p.envelope.Encode()
	if err != nil {
		m.markFailed(p, err)
		return nil, err
	}
	sim, err := m.rpc.SimulateTransaction(ctx, encoded)
	if err != nil {
		m.markFailed(p, err)
		return nil, errors.Wrap(err, "simulate")
	}
	if sim.Failed() {
		failure := m.simulationFailure(&sim)
		m.markFailed(p, failure)
		return nil, failure
	}
	m.transition(p, StateSimulated, log)

	// Assembled: merge the simulated fee and footprint, replacing the
	// placeholder. Pure local transformation.
	if err := assemble(p.envelope, &sim); err != nil {
		m.markFailed(p, err)
		return nil, err
	}
	m.transition(p, StateAssembled, log)

	// Signed: hand off to the external capability. May block on a human
	// for an arbitrarily long time; no timeout is applied here. A
	// rejection is terminal and never retried.
	assembled, err := p.envelope.Encode()
	if err != nil {
		m.markFailed(p, err)
		return nil, err
	}
	signedEnvelope, err := m.signer.Sign(ctx, assembled, m.cfg.NetworkPassphrase, source)
	if err != nil {
		if !errors.Is(err, domain.ErrSignRejected) {
			err = errors.Wrap(domain.ErrSignRejected, err.Error())
		}
		m.markFailed(p, err)
		return nil, err
	}
	m.transition(p, StateSigned, log)

	// Submitted: from here on the outcome belongs to the network.
	sent, err := m.rpc.SendTransaction(ctx, signedEnvelope)
	if err != nil {
		m.markFailed(p, err)
		return nil, err
	}
	p.hash = sent.Hash
	if m.journal != nil {
		if err := m.journal.MarkSubmitted(p.record, sent.Hash); err != nil {
			log.Error("failed to journal submission hash", zap.String("hash", sent.Hash), zap.Error(err))
		}
	}
	m.transition(p, StateSubmitted, log)

	// Confirming: poll by hash until a terminal status or the ceiling.
	m.transition(p, StateConfirming, log)
	submittedAt := time.Now()
	outcome, err := m.awaitConfirmation(ctx, sent.Hash)
	if err != nil {
		var timeout *domain.TimeoutError
		switch {
		case errors.As(err, &timeout):
			p.state = StateTimedOut
			if m.journal != nil {
				_ = m.journal.MarkTimedOut(p.record)
			}
		case ctx.Err() != nil:
			// Cancellation only detaches local observation; the ledger
			// outcome is untouched and stays recoverable via the hash.
			log.Info("confirmation polling detached", zap.String("hash", sent.Hash))
		default:
			m.markFailed(p, err)
		}
		return nil, err
	}
	m.metrics.ObserveConfirmation(time.Since(submittedAt).Seconds())

	if outcome.Status == clients.TxStatusFailed {
		failure := m.onChainFailure(op.Contract, outcome.ContractFailure)
		m.markFailed(p, failure)
		return nil, failure
	}

	p.state = StateSucceeded
	if m.journal != nil {
		_ = m.journal.MarkConfirmed(p.record)
	}
	log.Info("transaction confirmed",
		zap.String("hash", sent.Hash),
		zap.Int64("ledger", outcome.Ledger),
	)
	return &Result{Hash: sent.Hash, Ledger: outcome.Ledger, ReturnValue: outcome.ReturnValue}, nil
}

// ReadCall evaluates a read-only invocation through the simulation
// endpoint using the unauthenticated read source. Nothing is submitted.
func (m *Manager) ReadCall(ctx context.Context, op domain.Invocation) (*domain.ScVal, error) {
	envelope := &domain.Envelope{
		Source:      domain.ReadOnlySource,
		Sequence:    0,
		Fee:         domain.ReadFee,
		Passphrase:  m.cfg.NetworkPassphrase,
		TimeoutSecs: domain.DefaultTimeoutSecs,
		Op:          op,
	}
	encoded, err := envelope.Encode()
	if err != nil {
		return nil, err
	}
	sim, err := m.rpc.SimulateTransaction(ctx, encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s.%s", op.Contract, op.Method)
	}
	if sim.Failed() {
		return nil, m.simulationFailure(&sim)
	}
	return sim.RetVal, nil
}

// Outcome re-queries the ledger for the terminal result of a past
// submission. This is the recovery path for detached or timed-out
// operations and for restarted processes holding a journaled hash.
func (m *Manager) Outcome(ctx context.Context, hash string) (*Result, error) {
	res, err := m.rpc.GetTransaction(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "query outcome of %s", hash)
	}
	switch res.Status {
	case clients.TxStatusNotFound:
		return nil, ErrNotYetObserved
	case clients.TxStatusFailed:
		contract := ""
		if res.ContractFailure != nil {
			contract = res.ContractFailure.Contract
		}
		return nil, m.onChainFailure(contract, res.ContractFailure)
	case clients.TxStatusSuccess:
		return &Result{Hash: hash, Ledger: res.Ledger, ReturnValue: res.ReturnValue}, nil
	default:
		return nil, &domain.ProtocolError{Detail: "unknown transaction status " + res.Status}
	}
}

func (m *Manager) awaitConfirmation(ctx context.Context, hash string) (clients.TxResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.ConfirmInitialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 1.5
	b.MaxInterval = m.cfg.ConfirmMaxInterval
	b.MaxElapsedTime = m.cfg.ConfirmCeiling

	var outcome clients.TxResult
	poll := func() error {
		res, err := m.rpc.GetTransaction(ctx, hash)
		if err != nil {
			if domain.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if res.Status == clients.TxStatusNotFound {
			return ErrNotYetObserved
		}
		outcome = res
		return nil
	}

	if err := backoff.Retry(poll, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return outcome, errors.Wrap(ctx.Err(), "confirmation polling cancelled")
		}
		if errors.Is(err, ErrNotYetObserved) || domain.IsTransient(err) {
			return outcome, &domain.TimeoutError{Hash: hash}
		}
		return outcome, err
	}
	return outcome, nil
}

// assemble merges simulation output into the envelope. Fails only on
// malformed simulation output.
func assemble(envelope *domain.Envelope, sim *clients.SimulateResult) error {
	fee, err := strconv.ParseInt(sim.MinResourceFee, 10, 64)
	if err != nil || fee <= 0 {
		return &domain.ProtocolError{Detail: "malformed simulation resource fee " + sim.MinResourceFee}
	}
	envelope.Fee = fee
	envelope.ResourceFee = fee
	envelope.Footprint = sim.Footprint
	return nil
}

func (m *Manager) simulationFailure(sim *clients.SimulateResult) error {
	if sim.ContractFailure != nil {
		return m.onChainFailure(sim.ContractFailure.Contract, sim.ContractFailure)
	}
	return &domain.SimulationError{Detail: sim.Error}
}

func (m *Manager) onChainFailure(contract string, failure *clients.ContractFailure) error {
	if failure == nil {
		return &domain.OnChainError{Contract: contract, Kind: m.kindOf(contract), Code: 0}
	}
	target := failure.Contract
	if target == "" {
		target = contract
	}
	return &domain.OnChainError{Contract: target, Kind: m.kindOf(target), Code: failure.Code}
}

func (m *Manager) kindOf(contract string) domain.ContractKind {
	switch contract {
	case m.refs.Pool:
		return domain.KindPool
	case m.refs.Oracle:
		return domain.KindOracle
	case m.refs.Token, m.refs.USDC:
		return domain.KindToken
	default:
		return domain.KindUnknown
	}
}

func (m *Manager) transition(p *pending, next State, log *zap.Logger) {
	p.state = next
	log.Debug("state transition", zap.String("state", string(next)))
}

func (m *Manager) markFailed(p *pending, cause error) {
	p.state = StateFailed
	if m.journal != nil {
		_ = m.journal.MarkFailed(p.record, cause)
	}
}

func (m *Manager) sourceLock(source string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.sourceLocks[source]
	if !ok {
		lock = &sync.Mutex{}
		m.sourceLocks[source] = lock
	}
	return lock
}
