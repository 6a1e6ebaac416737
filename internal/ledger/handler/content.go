package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/content"
	"github.com/jmerrifield20/produce-escrow/internal/identity"
	"go.uber.org/zap"
)

// ContentHandler serves the content-addressed blob store.
type ContentHandler struct {
	store  content.Store
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewContentHandler creates a ContentHandler.
func NewContentHandler(store content.Store, tokens *identity.TokenIssuer, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{store: store, tokens: tokens, logger: logger}
}

// Register mounts the content routes on the given router group.
func (h *ContentHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/content", identity.RequirePrincipal(h.tokens), h.Put)
	rg.GET("/content/:cid", h.Get)
}

// Put handles POST /content. The raw request body is stored as-is.
func (h *ContentHandler) Put(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, content.MaxBlobSize+1))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	cid, err := h.store.Put(c.Request.Context(), data)
	switch {
	case errors.Is(err, content.ErrEmpty):
		badRequest(c, err.Error())
		return
	case errors.Is(err, content.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error(), "code": CodeInvalidRequest})
		return
	case err != nil:
		h.logger.Error("content put", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store content", "code": CodeInternal})
		return
	}

	h.logger.Debug("content stored", zap.String("cid", cid), zap.Int("bytes", len(data)))
	c.JSON(http.StatusCreated, gin.H{"cid": cid, "size": len(data)})
}

// Get handles GET /content/:cid.
func (h *ContentHandler) Get(c *gin.Context) {
	data, err := h.store.Get(c.Request.Context(), c.Param("cid"))
	switch {
	case errors.Is(err, content.ErrInvalidCID):
		badRequest(c, err.Error())
		return
	case errors.Is(err, content.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found", "code": CodeNotFound})
		return
	case err != nil:
		h.logger.Error("content get", zap.String("cid", c.Param("cid")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load content", "code": CodeInternal})
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
