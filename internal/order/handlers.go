package order

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for order creation and listing.
type Handler struct {
	service *Service
	ttl     time.Duration
}

// NewHandler creates a new order handler. The TTL bounds the manual expiry
// sweep the same way it bounds the background timer.
func NewHandler(service *Service, ttl time.Duration) *Handler {
	return &Handler{service: service, ttl: ttl}
}

// RegisterRoutes sets up checkout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/create-order", h.Create)
	r.GET("/company/:company_id/orders", h.ListByCompany)
}

// RegisterAdminRoutes sets up admin order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/orders/expire", h.ExpireStale)
}

// CreateRequest is the body for POST /payments/create-order.
type CreateRequest struct {
	PlanID            string `json:"plan_id"`
	CompanyAdminEmail string `json:"company_admin_email"`
}

// Create handles POST /payments/create-order
//
// Returns the handle the hosted checkout needs: the gateway's order id, the
// amount and currency, and our internal payment reference that the
// verification callback must echo back.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "plan_id and company_admin_email are required",
		})
		return
	}

	o, err := h.service.Create(c.Request.Context(), req.PlanID, req.CompanyAdminEmail)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "plan_id and company_admin_email are required",
			})
		case errors.Is(err, ErrUnknownPlan), errors.Is(err, ErrPlanInactive):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Plan is unknown or no longer available",
			})
		default:
			serviceUnavailable(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":   o.GatewayOrderID,
		"amount":     o.Amount,
		"currency":   o.Currency,
		"payment_id": o.PaymentRef,
	})
}

// ListByCompany handles GET /payments/company/:company_id/orders
func (h *Handler) ListByCompany(c *gin.Context) {
	orders, err := h.service.ListByCompany(c.Request.Context(), c.Param("company_id"))
	if err != nil {
		serviceUnavailable(c)
		return
	}
	if orders == nil {
		orders = []*Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// ExpireStale handles POST /v1/admin/orders/expire, a manual sweep of the
// same expiry the background timer runs.
func (h *Handler) ExpireStale(c *gin.Context) {
	n, err := h.service.ExpireStale(c.Request.Context(), h.ttl)
	if err != nil {
		serviceUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

func serviceUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "service_unavailable",
		"message": "Order service is temporarily unavailable",
	})
}
