// Package signer defines the signing capability consumed by the
// transaction lifecycle manager, plus a local ed25519 implementation for
// headless runs. The capability is treated as opaque and potentially slow:
// an interactive wallet may sit behind it, so no timeout is ever applied
// to the signing step itself.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dobfi/dobswap/internal/domain"
)

// Signer turns an encoded envelope into a signed encoded envelope, or
// reports an explicit rejection.
type Signer interface {
	Sign(ctx context.Context, envelope, networkPassphrase, account string) (string, error)
}

// Signature is one detached signature over the envelope payload hash.
type Signature struct {
	Hint      string `json:"hint"`
	Signature string `json:"signature"`
}

// SignedEnvelope is the submission payload: the original envelope plus its
// signatures.
type SignedEnvelope struct {
	Envelope   string      `json:"envelope"`
	Signatures []Signature `json:"signatures"`
}

// PayloadHash is the bytes a signature covers: the network passphrase hash
// prefixed to the raw envelope, hashed again. Binding the passphrase in
// keeps a testnet signature from replaying on the public network.
func PayloadHash(envelopeRaw []byte, networkPassphrase string) [32]byte {
	networkID := sha256.Sum256([]byte(networkPassphrase))
	h := sha256.New()
	h.Write(networkID[:])
	h.Write(envelopeRaw)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LocalSigner signs with an in-process ed25519 key. Used by headless
// deployments (oracle updaters, operations tooling); interactive wallets
// implement the same interface externally.
type LocalSigner struct {
	priv    ed25519.PrivateKey
	address string
}

// NewLocalSigner derives a signer from an S... secret seed.
func NewLocalSigner(secretSeed string) (*LocalSigner, error) {
	seed, err := DecodeSeed(secretSeed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid secret seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{
		priv:    priv,
		address: EncodeAccountAddress(pub),
	}, nil
}

// Address returns the G... account address of the signing key.
func (s *LocalSigner) Address() string {
	return s.address
}

// Sign signs the envelope for the given account. Signing for any other
// account is an explicit rejection.
func (s *LocalSigner) Sign(_ context.Context, envelope, networkPassphrase, account string) (string, error) {
	if account != s.address {
		return "", errors.Wrapf(domain.ErrSignRejected, "key holds %s, not %s", s.address, account)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", errors.Wrap(domain.ErrSignRejected, "envelope is not valid base64")
	}

	hash := PayloadHash(raw, networkPassphrase)
	sig := ed25519.Sign(s.priv, hash[:])

	pub := s.priv.Public().(ed25519.PublicKey)
	signed := SignedEnvelope{
		Envelope: envelope,
		Signatures: []Signature{{
			Hint:      base64.StdEncoding.EncodeToString(pub[len(pub)-4:]),
			Signature: base64.StdEncoding.EncodeToString(sig),
		}},
	}

	out, err := json.Marshal(signed)
	if err != nil {
		return "", errors.Wrap(err, "encode signed envelope")
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
