package model

import "errors"

// Error kinds returned by the lifecycle engine. Callers match them with
// errors.Is; the engine wraps them with operation context.
var (
	ErrNotFound        = errors.New("batch not found")
	ErrUnauthorized    = errors.New("caller not authorized")
	ErrInvalidState    = errors.New("invalid batch state")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidRange    = errors.New("value out of range")
	ErrAlreadyHasBuyer = errors.New("batch already has a buyer")
	ErrTransferFailed  = errors.New("transfer failed")
)

// ErrValidation is returned for malformed input that is not one of the
// ledger's error kinds (bad CID, empty field).
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
