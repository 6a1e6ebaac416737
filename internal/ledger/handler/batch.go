package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/identity"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/service"
	"go.uber.org/zap"
)

// BatchHandler exposes the lifecycle engine over HTTP.
type BatchHandler struct {
	eng    *service.Engine
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewBatchHandler creates a BatchHandler. Mutating routes authenticate the
// caller with tokens.
func NewBatchHandler(eng *service.Engine, tokens *identity.TokenIssuer, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{eng: eng, tokens: tokens, logger: logger}
}

// Register registers all batch and incentive routes on the given router group.
func (h *BatchHandler) Register(rg *gin.RouterGroup) {
	auth := identity.RequirePrincipal(h.tokens)

	b := rg.Group("/batches")
	{
		b.POST("", auth, h.CreateBatch)
		b.GET("/:id", h.GetBatch)
		b.GET("/:id/provenance", h.GetProvenance)
		b.POST("/:id/list", auth, h.ListBatch)
		b.POST("/:id/quality", auth, h.UpdateQuality)
		b.POST("/:id/metadata", auth, h.UpdateMetadata)
		b.POST("/:id/provenance", auth, h.AddProvenance)
		b.POST("/:id/fund", auth, h.FundEscrow)
		b.POST("/:id/deliver", auth, h.MarkDelivered)
		b.POST("/:id/release", auth, h.Release)
		b.POST("/:id/refund", auth, h.Refund)
	}

	rg.GET("/incentives/:principal", h.GetIncentive)
}

// caller returns the authenticated principal. RequirePrincipal guarantees
// it is present on every route that calls this.
func caller(c *gin.Context) model.Principal {
	p, _ := identity.PrincipalFromCtx(c)
	return p
}

// batchID parses the :id path parameter, writing a 400 on failure.
func batchID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// CreateBatch handles POST /batches.
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req model.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.eng.CreateBatch(c.Request.Context(), caller(c), req.MetadataCID, req.PriceWei)
	if err != nil {
		writeEngineError(c, h.logger, "create batch", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetBatch handles GET /batches/:id.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	b, err := h.eng.GetBatch(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, h.logger, "get batch", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetProvenance handles GET /batches/:id/provenance.
func (h *BatchHandler) GetProvenance(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	entries, err := h.eng.GetProvenance(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, h.logger, "get provenance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": id, "provenance": entries, "count": len(entries)})
}

// ListBatch handles POST /batches/:id/list.
func (h *BatchHandler) ListBatch(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	var req model.ListBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, "list batch", id, h.eng.ListBatch(c.Request.Context(), caller(c), id, req.PriceWei))
}

// UpdateQuality handles POST /batches/:id/quality.
func (h *BatchHandler) UpdateQuality(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	var req model.UpdateQualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, "update quality", id, h.eng.UpdateQuality(c.Request.Context(), caller(c), id, *req.Score, req.Verified))
}

// UpdateMetadata handles POST /batches/:id/metadata.
func (h *BatchHandler) UpdateMetadata(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	var req model.UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, "update metadata", id, h.eng.UpdateMetadata(c.Request.Context(), caller(c), id, req.MetadataCID))
}

// AddProvenance handles POST /batches/:id/provenance.
func (h *BatchHandler) AddProvenance(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	var req model.AddProvenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, "add provenance", id, h.eng.AddProvenance(c.Request.Context(), caller(c), id, req.CID))
}

// FundEscrow handles POST /batches/:id/fund.
func (h *BatchHandler) FundEscrow(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	var req model.FundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respond(c, "fund escrow", id, h.eng.FundEscrow(c.Request.Context(), caller(c), id, req.AmountWei))
}

// MarkDelivered handles POST /batches/:id/deliver.
func (h *BatchHandler) MarkDelivered(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	h.respond(c, "mark delivered", id, h.eng.MarkDelivered(c.Request.Context(), caller(c), id))
}

// Release handles POST /batches/:id/release.
func (h *BatchHandler) Release(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	h.respond(c, "release", id, h.eng.ReleaseToFarmer(c.Request.Context(), caller(c), id))
}

// Refund handles POST /batches/:id/refund.
func (h *BatchHandler) Refund(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}
	h.respond(c, "refund", id, h.eng.RefundBuyer(c.Request.Context(), caller(c), id))
}

// GetIncentive handles GET /incentives/:principal.
func (h *BatchHandler) GetIncentive(c *gin.Context) {
	p, err := model.ParsePrincipal(c.Param("principal"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	points, err := h.eng.IncentiveBalance(c.Request.Context(), p)
	if err != nil {
		writeEngineError(c, h.logger, "incentive balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": p, "points": points})
}

// respond writes the updated batch on success, or the mapped error.
func (h *BatchHandler) respond(c *gin.Context, op string, id uint64, err error) {
	if err != nil {
		writeEngineError(c, h.logger, op, err)
		return
	}
	b, err := h.eng.GetBatch(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, h.logger, op, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
