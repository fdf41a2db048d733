package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BigInt is an arbitrary-precision integer that decodes from JSON strings,
// numbers, scientific notation and 0x-prefixed hex.
type BigInt struct {
	big.Int
}

// NewBigInt copies v into a BigInt
func NewBigInt(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.Set(v)
	}
	return b
}

// Big returns a copy of the value as *big.Int
func (b *BigInt) Big() *big.Int {
	return new(big.Int).Set(&b.Int)
}

// UnmarshalJSON normalizes every wire representation into base units
func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		b.SetInt64(0)
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := ParseBigInt(raw)
	if err != nil {
		return err
	}
	b.Set(v)
	return nil
}

// MarshalJSON encodes the value as a decimal string
func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// ParseBigInt parses a decimal, scientific or hex integer string.
// Fractional parts are truncated.
func ParseBigInt(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex amount %q", raw)
		}
		return v, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d.Truncate(0).BigInt(), nil
}
