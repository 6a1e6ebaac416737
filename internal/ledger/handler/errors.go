package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"go.uber.org/zap"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeInvalidState    = "invalid_state"
	CodeAlreadyHasBuyer = "already_has_buyer"
	CodeInvalidAmount   = "invalid_amount"
	CodeInvalidRange    = "invalid_range"
	CodeInvalidRequest  = "invalid_request"
	CodeTransferFailed  = "transfer_failed"
	CodeInternal        = "internal"
)

// writeEngineError maps an engine error onto an HTTP status and code.
// Errors outside the ledger's taxonomy are logged and reported as 500.
func writeEngineError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var verr *model.ErrValidation
	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, model.ErrUnauthorized):
		status, code = http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, model.ErrAlreadyHasBuyer):
		status, code = http.StatusConflict, CodeAlreadyHasBuyer
	case errors.Is(err, model.ErrInvalidState):
		status, code = http.StatusConflict, CodeInvalidState
	case errors.Is(err, model.ErrInvalidAmount):
		status, code = http.StatusBadRequest, CodeInvalidAmount
	case errors.Is(err, model.ErrInvalidRange):
		status, code = http.StatusBadRequest, CodeInvalidRange
	case errors.As(err, &verr):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, model.ErrTransferFailed):
		status, code = http.StatusBadGateway, CodeTransferFailed
	}

	if status == http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	if status == http.StatusBadGateway {
		logger.Warn(op, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeInvalidRequest})
}
