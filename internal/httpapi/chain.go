package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/ledger"
)

// ChainHandler exposes read-only chain inspection routes.
type ChainHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewChainHandler creates a ChainHandler.
func NewChainHandler(svc *ledger.Service, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{svc: svc, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/chain", h.List)
	rg.GET("/chain/:index", h.Get)
}

// List handles GET /chain.
func (h *ChainHandler) List(c *gin.Context) {
	blocks, err := h.svc.ChainBlocks(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "length": len(blocks)})
}

// Get handles GET /chain/:index.
func (h *ChainHandler) Get(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		respondError(c, &ledger.Error{Code: ledger.CodeInvalidInput, Message: "index must be a non-negative integer"})
		return
	}

	block, err := h.svc.ChainBlock(c.Request.Context(), bearerToken(c), idx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}
