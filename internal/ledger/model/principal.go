package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Principal is an authenticated account identity (a 20-byte wallet address).
// The zero value is the "unset" principal and never matches a real caller.
type Principal struct {
	addr common.Address
}

// ParsePrincipal parses a 0x-prefixed hex address. Checksummed and
// lower-case forms are both accepted.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Principal{}, fmt.Errorf("invalid principal %q: not a hex address", s)
	}
	p := Principal{addr: common.HexToAddress(s)}
	if p.IsZero() {
		return Principal{}, fmt.Errorf("invalid principal %q: zero address", s)
	}
	return p, nil
}

// MustPrincipal is like ParsePrincipal but panics on error. Intended for
// constants and tests.
func MustPrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Address returns the underlying address.
func (p Principal) Address() common.Address { return p.addr }

// IsZero reports whether p is the unset principal.
func (p Principal) IsZero() bool { return p.addr == (common.Address{}) }

// String returns the EIP-55 checksummed hex form.
func (p Principal) String() string { return p.addr.Hex() }

func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.addr.Hex())
}

func (p *Principal) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePrincipal(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
