package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dobfi/dobswap/internal/domain"
)

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func TestStrkeyRoundTrip(t *testing.T) {
	seed := testSeed()

	secret := EncodeSeed(seed)
	assert.True(t, strings.HasPrefix(secret, "S"), "seed strkey must start with S, got %s", secret)

	back, err := DecodeSeed(secret)
	require.NoError(t, err)
	assert.Equal(t, seed, back)

	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	addr := EncodeAccountAddress(pub)
	assert.True(t, strings.HasPrefix(addr, "G"), "account strkey must start with G, got %s", addr)
}

func TestDecodeSeedRejectsCorruption(t *testing.T) {
	secret := EncodeSeed(testSeed())

	// flip one character in the payload region
	corrupted := []byte(secret)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}
	_, err := DecodeSeed(string(corrupted))
	require.Error(t, err)

	_, err = DecodeSeed("not a strkey at all")
	require.Error(t, err)

	// a G... address is the wrong version byte for a seed
	pub := ed25519.NewKeyFromSeed(testSeed()).Public().(ed25519.PublicKey)
	_, err = DecodeSeed(EncodeAccountAddress(pub))
	require.Error(t, err)
}

func TestLocalSignerSignAndVerify(t *testing.T) {
	const passphrase = "Test SDF Network ; September 2015"

	seed := testSeed()
	sgn, err := NewLocalSigner(EncodeSeed(seed))
	require.NoError(t, err)

	env := &domain.Envelope{
		Source:   sgn.Address(),
		Sequence: 1,
		Fee:      domain.PlaceholderFee,
		Op:       domain.Invocation{Contract: "CPOOL", Method: "swap_buy"},
	}
	encoded, err := env.Encode()
	require.NoError(t, err)

	signedEncoded, err := sgn.Sign(context.Background(), encoded, passphrase, sgn.Address())
	require.NoError(t, err)

	rawSigned, err := base64.StdEncoding.DecodeString(signedEncoded)
	require.NoError(t, err)
	var signed SignedEnvelope
	require.NoError(t, json.Unmarshal(rawSigned, &signed))

	assert.Equal(t, encoded, signed.Envelope, "signing must not mutate the envelope")
	require.Len(t, signed.Signatures, 1)

	rawEnv, err := base64.StdEncoding.DecodeString(signed.Envelope)
	require.NoError(t, err)
	hash := PayloadHash(rawEnv, passphrase)

	sig, err := base64.StdEncoding.DecodeString(signed.Signatures[0].Signature)
	require.NoError(t, err)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, hash[:], sig))
}

func TestPayloadHashBindsNetwork(t *testing.T) {
	raw := []byte("envelope bytes")
	testnet := PayloadHash(raw, "Test SDF Network ; September 2015")
	mainnet := PayloadHash(raw, "Public Global Stellar Network ; September 2015")
	assert.NotEqual(t, testnet, mainnet)
}

func TestLocalSignerRejectsForeignAccount(t *testing.T) {
	sgn, err := NewLocalSigner(EncodeSeed(testSeed()))
	require.NoError(t, err)

	env := &domain.Envelope{Source: "GOTHER", Sequence: 1}
	encoded, err := env.Encode()
	require.NoError(t, err)

	_, err = sgn.Sign(context.Background(), encoded, "passphrase", "GOTHER")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSignRejected)
}
