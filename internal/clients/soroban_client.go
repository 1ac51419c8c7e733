// Package clients contains the low-level Soroban RPC client. It speaks
// JSON-RPC 2.0 over HTTP and maps transport failures into the typed
// failure taxonomy so callers can tell "safe to retry" from "unknown
// outcome".
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dobfi/dobswap/internal/domain"
)

const jsonRPCVersion = "2.0"

// SorobanClient wraps one Soroban RPC endpoint.
type SorobanClient struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64
}

// Option configures the client.
type Option func(*SorobanClient)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *SorobanClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewSorobanClient creates a client bound to the provided RPC endpoint.
func NewSorobanClient(endpoint string, opts ...Option) (*SorobanClient, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("soroban rpc endpoint required")
	}
	c := &SorobanClient{
		endpoint:   trimmed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// call performs one JSON-RPC round trip. Transport failures come back as
// TransientError; RPC-level errors as ProtocolError.
func (c *SorobanClient) call(ctx context.Context, method string, params, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Err: errors.Wrapf(err, "%s", method)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransientError{Err: errors.Wrapf(err, "read %s response", method)}
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return &domain.TransientError{Err: fmt.Errorf("%s: http %d", method, resp.StatusCode)}
		}
		return &domain.ProtocolError{Detail: fmt.Sprintf("%s: http %d", method, resp.StatusCode)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return &domain.ProtocolError{Detail: fmt.Sprintf("%s: invalid json-rpc response", method)}
	}
	if rpcResp.Error != nil {
		return &domain.ProtocolError{Detail: fmt.Sprintf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return &domain.ProtocolError{Detail: fmt.Sprintf("%s: malformed result", method)}
		}
	}
	return nil
}

// GetHealth probes the node.
func (c *SorobanClient) GetHealth(ctx context.Context) error {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "getHealth", nil, &res); err != nil {
		return err
	}
	if res.Status != "healthy" {
		return &domain.ProtocolError{Detail: "node reported status " + res.Status}
	}
	return nil
}

// NetworkInfo describes the ledger environment behind the endpoint.
type NetworkInfo struct {
	Passphrase string `json:"passphrase"`
}

// GetNetwork returns the endpoint's network identity.
func (c *SorobanClient) GetNetwork(ctx context.Context) (NetworkInfo, error) {
	var res NetworkInfo
	err := c.call(ctx, "getNetwork", nil, &res)
	return res, err
}

// Account is the fee-paying, signing principal with its current sequence
// state. Never cached: sequence changes after every confirmed transaction.
type Account struct {
	ID       string
	Sequence int64
}

// GetAccount resolves an address into its current sequence state.
func (c *SorobanClient) GetAccount(ctx context.Context, address string) (Account, error) {
	var res struct {
		ID       string `json:"id"`
		Sequence string `json:"sequence"`
	}
	params := struct {
		Address string `json:"address"`
	}{Address: address}
	if err := c.call(ctx, "getAccount", params, &res); err != nil {
		return Account{}, err
	}
	seq, err := strconv.ParseInt(res.Sequence, 10, 64)
	if err != nil {
		return Account{}, &domain.ProtocolError{Detail: "malformed account sequence " + res.Sequence}
	}
	return Account{ID: res.ID, Sequence: seq}, nil
}

// ContractFailure is the structured contract-level rejection reported by
// the node, replacing any inspection of human-readable error text.
type ContractFailure struct {
	Contract string `json:"contract"`
	Code     uint32 `json:"code"`
}

// SimulateResult is the outcome of a dry run against current state.
type SimulateResult struct {
	Error           string            `json:"error,omitempty"`
	ContractFailure *ContractFailure  `json:"contractFailure,omitempty"`
	MinResourceFee  string            `json:"minResourceFee,omitempty"`
	Footprint       *domain.Footprint `json:"footprint,omitempty"`
	RetVal          *domain.ScVal     `json:"retval,omitempty"`
	LatestLedger    int64             `json:"latestLedger,omitempty"`
}

// Failed reports whether the simulation was rejected.
func (r *SimulateResult) Failed() bool {
	return r.Error != "" || r.ContractFailure != nil
}

// SimulateTransaction dry-runs an encoded envelope.
func (c *SorobanClient) SimulateTransaction(ctx context.Context, envelope string) (SimulateResult, error) {
	var res SimulateResult
	params := struct {
		Transaction string `json:"transaction"`
	}{Transaction: envelope}
	err := c.call(ctx, "simulateTransaction", params, &res)
	return res, err
}

// Submission statuses reported by sendTransaction.
const (
	SendStatusPending = "PENDING"
	SendStatusError   = "ERROR"
)

// SendResult carries the immediately-known submission hash and the initial,
// non-terminal status.
type SendResult struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// SendTransaction submits a signed envelope. Transport failures here are
// SubmissionError, not TransientError: the envelope may have reached the
// network, so a blind retry risks double execution.
func (c *SorobanClient) SendTransaction(ctx context.Context, signedEnvelope string) (SendResult, error) {
	var res SendResult
	params := struct {
		Transaction string `json:"transaction"`
	}{Transaction: signedEnvelope}
	if err := c.call(ctx, "sendTransaction", params, &res); err != nil {
		if domain.IsTransient(err) {
			return SendResult{}, &domain.SubmissionError{Detail: err.Error()}
		}
		return SendResult{}, err
	}
	if res.Status == SendStatusError {
		return SendResult{}, &domain.SubmissionError{Detail: res.Detail}
	}
	return res, nil
}

// Transaction statuses reported by getTransaction.
const (
	TxStatusNotFound = "NOT_FOUND"
	TxStatusSuccess  = "SUCCESS"
	TxStatusFailed   = "FAILED"
)

// TxResult is the polled outcome of a submitted transaction.
type TxResult struct {
	Status          string           `json:"status"`
	ReturnValue     *domain.ScVal    `json:"returnValue,omitempty"`
	ContractFailure *ContractFailure `json:"contractFailure,omitempty"`
	Ledger          int64            `json:"ledger,omitempty"`
}

// GetTransaction fetches the outcome of a submission by hash.
func (c *SorobanClient) GetTransaction(ctx context.Context, hash string) (TxResult, error) {
	var res TxResult
	params := struct {
		Hash string `json:"hash"`
	}{Hash: hash}
	err := c.call(ctx, "getTransaction", params, &res)
	return res, err
}
