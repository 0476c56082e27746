package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/ledger"
)

// AdminHandler exposes integrity tooling gated on the tester role.
type AdminHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *ledger.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	admin := rg.Group("/admin")
	{
		admin.GET("/verify", h.Verify)
		admin.POST("/tamper", h.Tamper)
		admin.GET("/integrity", h.Integrity)
	}
}

// Verify handles GET /admin/verify. The chain walk result is always a 200;
// validity is reported in the body.
func (h *AdminHandler) Verify(c *gin.Context) {
	valid, report, err := h.svc.VerifyChain(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	setChainValidGauge(valid)
	body := gin.H{"valid": valid}
	if report != "" {
		body["report"] = report
	}
	c.JSON(http.StatusOK, body)
}

type tamperRequest struct {
	Index int    `json:"index"`
	Data  string `json:"data" binding:"required"`
}

// Tamper handles POST /admin/tamper. The mutation is in-memory only and
// exists so a verify run can demonstrate corruption detection.
func (h *AdminHandler) Tamper(c *gin.Context) {
	var req tamperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ledger.Error{Code: ledger.CodeInvalidInput, Message: "index and data are required"})
		return
	}

	if err := h.svc.TamperBlock(c.Request.Context(), bearerToken(c), req.Index, req.Data); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Warn("block tampered for integrity demonstration", zap.Int("index", req.Index))
	setChainValidGauge(false)
	c.JSON(http.StatusOK, gin.H{"tampered": true, "index": req.Index})
}

// Integrity handles GET /admin/integrity. Reports the cached validity flag
// without re-walking the chain.
func (h *AdminHandler) Integrity(c *gin.Context) {
	valid, err := h.svc.IntegrityStatus(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
