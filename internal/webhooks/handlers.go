package webhooks

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/security"
)

// Handler provides HTTP endpoints for webhook subscription management.
type Handler struct {
	store Store
}

// NewHandler creates a new webhook handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up webhook management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks", h.Create)
	r.GET("/webhooks/:company_id", h.ListByCompany)
	r.DELETE("/webhooks/:company_id/:id", h.Delete)
}

// CreateRequest is the body for registering a webhook subscription.
type CreateRequest struct {
	CompanyID string   `json:"company_id" binding:"required"`
	URL       string   `json:"url" binding:"required"`
	Events    []string `json:"events" binding:"required"`
}

// Create handles POST /payments/webhooks
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "company_id, url, and events are required",
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	events := make([]EventType, len(req.Events))
	for i, e := range req.Events {
		events[i] = EventType(e)
	}

	secret := idgen.Hex(32)
	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		CompanyID: req.CompanyID,
		URL:       req.URL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Failed to create webhook subscription",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		// Shown once; only the HMAC over the payload is sent afterwards.
		"secret": secret,
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Hirelens-Signature",
		},
	})
}

// ListByCompany handles GET /payments/webhooks/:company_id
func (h *Handler) ListByCompany(c *gin.Context) {
	subs, err := h.store.GetByCompany(c.Request.Context(), c.Param("company_id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Failed to list webhook subscriptions",
		})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

// Delete handles DELETE /payments/webhooks/:company_id/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Failed to delete webhook subscription",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
