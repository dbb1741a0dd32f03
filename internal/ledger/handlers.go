package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for balances and transaction history.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new ledger handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up company-scoped read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/company/:company_id/credits", h.GetCredits)
	r.GET("/company/:company_id/transactions", h.ListTransactions)
}

// RegisterAdminRoutes sets up admin-only ledger routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/company/:company_id/refund", h.Refund)
}

// GetCredits handles GET /payments/company/:company_id/credits
func (h *Handler) GetCredits(c *gin.Context) {
	account, err := h.ledger.GetBalance(c.Request.Context(), c.Param("company_id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Credit ledger is temporarily unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListTransactions handles GET /payments/company/:company_id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	txs, err := h.ledger.ListTransactions(c.Request.Context(), c.Param("company_id"), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Credit ledger is temporarily unavailable",
		})
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}

// RefundRequest is the body for admin-initiated refunds.
type RefundRequest struct {
	Credits     int64  `json:"credits" binding:"required"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

// Refund handles POST /payments/company/:company_id/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "credits is required",
		})
		return
	}

	desc := req.Description
	if desc == "" {
		desc = "Administrative refund"
	}

	account, err := h.ledger.Refund(c.Request.Context(), c.Param("company_id"), req.Credits, CreditRef{
		PaymentReference: req.Reference,
		Description:      desc,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "credits must be positive",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Credit ledger is temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, account)
}
