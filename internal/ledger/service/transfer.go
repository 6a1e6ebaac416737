package service

import (
	"context"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// PaymentKind distinguishes the two outbound escrow transfers.
type PaymentKind string

const (
	PaymentRelease PaymentKind = "release"
	PaymentRefund  PaymentKind = "refund"
)

// Payment is an outbound transfer of escrowed funds.
type Payment struct {
	BatchID uint64          `json:"batch_id"`
	Kind    PaymentKind     `json:"kind"`
	To      model.Principal `json:"to"`
	Amount  model.Amount    `json:"amount_wei"`
}

// Transferer moves escrowed funds out of the ledger. It is the only
// collaborator that may run arbitrary code during an operation, and it may
// call back into the Engine. A non-nil error means the funds did not move.
type Transferer interface {
	Transfer(ctx context.Context, p Payment) error
}
