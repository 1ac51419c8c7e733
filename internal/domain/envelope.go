package domain

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

// DefaultTimeoutSecs bounds how long a built envelope stays valid on the
// network before it can no longer be included in a ledger.
const DefaultTimeoutSecs = 30

// PlaceholderFee is the conservative fee attached to a freshly built
// envelope. Simulation replaces it with the real resource fee.
const PlaceholderFee int64 = 100_000

// ReadFee is the nominal fee attached to read-only simulation envelopes.
const ReadFee int64 = 100

// ReadOnlySource is the well-known unfunded account used as the source of
// pure read simulations that need no real signer.
const ReadOnlySource = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"

// Invocation is one contract call: target contract, method name and
// ordered, typed arguments.
type Invocation struct {
	Contract string  `json:"contract"`
	Method   string  `json:"method"`
	Args     []ScVal `json:"args,omitempty"`
}

// Footprint is the simulated resource footprint merged back into the
// envelope during assembly. Opaque to the client.
type Footprint struct {
	ReadBytes  int64    `json:"read_bytes"`
	WriteBytes int64    `json:"write_bytes"`
	Entries    []string `json:"entries,omitempty"`
}

// Envelope is the network-specific wrapper around one invocation. It is
// built from a just-resolved account sequence, simulated for the real fee
// and footprint, then handed to the signing capability as opaque bytes.
type Envelope struct {
	Source      string     `json:"source"`
	Sequence    int64      `json:"sequence"`
	Fee         int64      `json:"fee"`
	Passphrase  string     `json:"passphrase"`
	TimeoutSecs int64      `json:"timeout_secs"`
	Op          Invocation `json:"op"`
	ResourceFee int64      `json:"resource_fee,omitempty"`
	Footprint   *Footprint `json:"footprint,omitempty"`
}

// Encode serializes the envelope to the base64 form consumed by the
// simulation endpoint and the signing capability.
func (e *Envelope) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "encode envelope")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeEnvelope parses an encoded envelope back into its structured form.
func DecodeEnvelope(encoded string) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &ProtocolError{Detail: "envelope is not valid base64"}
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, &ProtocolError{Detail: "envelope payload is malformed"}
	}
	return &e, nil
}
