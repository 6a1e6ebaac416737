package repository

import (
	"fmt"
	"math"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// adjustBalance applies a signed point change to cur. A balance never goes
// below zero or past math.MaxInt64, the widest value every store can hold.
func adjustBalance(p model.Principal, cur uint64, delta int64) (uint64, error) {
	switch {
	case delta > 0:
		if uint64(delta) > math.MaxInt64-cur {
			return cur, fmt.Errorf("credit %d points to %s: balance overflow", delta, p)
		}
		return cur + uint64(delta), nil
	case delta < 0:
		debit := uint64(-(delta + 1)) + 1
		if debit > cur {
			return cur, fmt.Errorf("debit %d points from %s: balance is %d", debit, p, cur)
		}
		return cur - debit, nil
	}
	return cur, nil
}
