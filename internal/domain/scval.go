package domain

import (
	"strconv"

	"github.com/pkg/errors"
)

// ScVal is the typed argument and return-value representation for contract
// invocations. Integers travel as decimal strings so 128-bit values survive
// JSON transport intact.
type ScVal struct {
	Type    string  `json:"type"`
	I128    string  `json:"i128,omitempty"`
	U32     uint32  `json:"u32,omitempty"`
	Address string  `json:"address,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	Vec     []ScVal `json:"vec,omitempty"`
}

const (
	ScValI128    = "i128"
	ScValU32     = "u32"
	ScValAddress = "address"
	ScValSymbol  = "symbol"
	ScValVec     = "vec"
)

// I128Val builds an i128 amount argument.
func I128Val(v int64) ScVal {
	return ScVal{Type: ScValI128, I128: strconv.FormatInt(v, 10)}
}

// U32Val builds a u32 argument.
func U32Val(v uint32) ScVal {
	return ScVal{Type: ScValU32, U32: v}
}

// AddressVal builds an address argument.
func AddressVal(a string) ScVal {
	return ScVal{Type: ScValAddress, Address: a}
}

// VecVal builds a vector value.
func VecVal(items ...ScVal) ScVal {
	return ScVal{Type: ScValVec, Vec: items}
}

// AsI128 decodes the value as a signed 128-bit integer narrowed to int64.
// All amounts handled by this client fit well within int64 stroops.
func (v *ScVal) AsI128() (int64, error) {
	if v == nil || v.Type != ScValI128 {
		return 0, &ProtocolError{Detail: "expected i128 return value"}
	}
	n, err := strconv.ParseInt(v.I128, 10, 64)
	if err != nil {
		return 0, errors.WithStack(&ProtocolError{Detail: "malformed i128: " + v.I128})
	}
	return n, nil
}

// AsU32 decodes the value as an unsigned 32-bit integer.
func (v *ScVal) AsU32() (uint32, error) {
	if v == nil || v.Type != ScValU32 {
		return 0, &ProtocolError{Detail: "expected u32 return value"}
	}
	return v.U32, nil
}

// AsAddress decodes the value as an account or contract address.
func (v *ScVal) AsAddress() (string, error) {
	if v == nil || v.Type != ScValAddress || v.Address == "" {
		return "", &ProtocolError{Detail: "expected address return value"}
	}
	return v.Address, nil
}

// AsAddressVec decodes the value as a vector of addresses.
func (v *ScVal) AsAddressVec() ([]string, error) {
	if v == nil || v.Type != ScValVec {
		return nil, &ProtocolError{Detail: "expected vec return value"}
	}
	out := make([]string, 0, len(v.Vec))
	for i := range v.Vec {
		addr, err := v.Vec[i].AsAddress()
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// AsI128Pair decodes a two-element vector of i128 values, the shape returned
// by get_reserves and remove_liquidity.
func (v *ScVal) AsI128Pair() (int64, int64, error) {
	if v == nil || v.Type != ScValVec || len(v.Vec) != 2 {
		return 0, 0, &ProtocolError{Detail: "expected pair return value"}
	}
	a, err := v.Vec[0].AsI128()
	if err != nil {
		return 0, 0, err
	}
	b, err := v.Vec[1].AsI128()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// AsI128Triple decodes a three-element vector of i128 values (get_stats).
func (v *ScVal) AsI128Triple() (int64, int64, int64, error) {
	if v == nil || v.Type != ScValVec || len(v.Vec) != 3 {
		return 0, 0, 0, &ProtocolError{Detail: "expected triple return value"}
	}
	a, err := v.Vec[0].AsI128()
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := v.Vec[1].AsI128()
	if err != nil {
		return 0, 0, 0, err
	}
	c, err := v.Vec[2].AsI128()
	if err != nil {
		return 0, 0, 0, err
	}
	return a, b, c, nil
}
