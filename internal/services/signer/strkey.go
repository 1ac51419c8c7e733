package signer

import (
	"bytes"
	"encoding/base32"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Strkey version bytes.
const (
	versionAccount byte = 6 << 3  // 'G...'
	versionSeed    byte = 18 << 3 // 'S...'
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// crc16 implements CRC16-XModem, the checksum strkey appends to its payload.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func encodeStrkey(version byte, payload []byte) string {
	raw := make([]byte, 0, len(payload)+3)
	raw = append(raw, version)
	raw = append(raw, payload...)

	var checksum [2]byte
	binary.LittleEndian.PutUint16(checksum[:], crc16(raw))
	raw = append(raw, checksum[:]...)

	return b32.EncodeToString(raw)
}

func decodeStrkey(version byte, encoded string) ([]byte, error) {
	raw, err := b32.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode strkey")
	}
	if len(raw) < 3 {
		return nil, errors.New("strkey too short")
	}
	if raw[0] != version {
		return nil, errors.Errorf("unexpected strkey version byte %#x", raw[0])
	}

	payload := raw[1 : len(raw)-2]
	var checksum [2]byte
	binary.LittleEndian.PutUint16(checksum[:], crc16(raw[:len(raw)-2]))
	if !bytes.Equal(checksum[:], raw[len(raw)-2:]) {
		return nil, errors.New("strkey checksum mismatch")
	}
	return payload, nil
}

// EncodeAccountAddress renders a raw ed25519 public key as a G... address.
func EncodeAccountAddress(pub []byte) string {
	return encodeStrkey(versionAccount, pub)
}

// DecodeSeed extracts the raw 32-byte signing seed from an S... secret.
func DecodeSeed(secret string) ([]byte, error) {
	payload, err := decodeStrkey(versionSeed, secret)
	if err != nil {
		return nil, err
	}
	if len(payload) != 32 {
		return nil, errors.Errorf("seed payload is %d bytes, want 32", len(payload))
	}
	return payload, nil
}

// EncodeSeed renders a raw 32-byte seed as an S... secret.
func EncodeSeed(seed []byte) string {
	return encodeStrkey(versionSeed, seed)
}
