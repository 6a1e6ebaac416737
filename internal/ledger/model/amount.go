package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when an addition would exceed 2^256-1.
var ErrAmountOverflow = errors.New("amount overflows 256 bits")

// Amount is an unsigned wei amount. Arithmetic never wraps; overflow is
// reported as an error. The zero value is a valid zero amount.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n wei.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 wei string. Signs, decimals and hex are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidAmount, s)
		}
	}
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return Amount{v: *u}, nil
}

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Eq reports whether a and b hold the same value.
func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// Add returns a+b, or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// Float64 is a lossy conversion used only for metrics.
func (a Amount) Float64() float64 { return a.v.Float64() }

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a decimal string so values above 2^53
// survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts either a decimal string or a JSON integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
