package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/ledger"
)

// TransferHandler handles transfer and transaction-history routes.
type TransferHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(svc *ledger.Service, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, logger: logger}
}

// Register mounts the transfer routes on the given router group.
func (h *TransferHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/transfers", h.Send)
	rg.POST("/transfers/by-username", h.SendByUsername)
	rg.GET("/transactions", h.List)
	rg.GET("/transactions/search", h.Search)
}

type transferRequest struct {
	ReceiverWalletAddress string `json:"receiver_wallet_address" binding:"required"`
	Amount                string `json:"amount" binding:"required"`
}

type transferByUsernameRequest struct {
	ReceiverUsername string `json:"receiver_username" binding:"required"`
	Amount           string `json:"amount" binding:"required"`
}

// Send handles POST /transfers.
func (h *TransferHandler) Send(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ledger.Error{Code: ledger.CodeInvalidInput, Message: "receiver_wallet_address and amount are required"})
		return
	}

	receipt, err := h.svc.SendValue(c.Request.Context(), bearerToken(c), req.ReceiverWalletAddress, req.Amount)
	if err != nil {
		recordTransfer(false)
		respondError(c, err)
		return
	}
	recordTransfer(true)
	c.JSON(http.StatusCreated, receipt)
}

// SendByUsername handles POST /transfers/by-username.
func (h *TransferHandler) SendByUsername(c *gin.Context) {
	var req transferByUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ledger.Error{Code: ledger.CodeInvalidInput, Message: "receiver_username and amount are required"})
		return
	}

	receipt, err := h.svc.SendValueToUsername(c.Request.Context(), bearerToken(c), req.ReceiverUsername, req.Amount)
	if err != nil {
		recordTransfer(false)
		respondError(c, err)
		return
	}
	recordTransfer(true)
	c.JSON(http.StatusCreated, receipt)
}

// List handles GET /transactions.
func (h *TransferHandler) List(c *gin.Context) {
	txs, err := h.svc.MyTransactions(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// Search handles GET /transactions/search?q=...
func (h *TransferHandler) Search(c *gin.Context) {
	txs, err := h.svc.SearchTransactions(c.Request.Context(), bearerToken(c), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}
