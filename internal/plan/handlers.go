package plan

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the plan catalog.
type Handler struct {
	service *Service
}

// NewHandler creates a new plan handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) catalog routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/available-plans", h.ListAvailable)
	r.GET("/plans", h.List)
	r.GET("/plans/:plan_id", h.Get)
}

// RegisterAdminRoutes sets up catalog management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/plans", h.Create)
	r.PUT("/plans/:plan_id", h.Update)
	r.DELETE("/plans/:plan_id", h.Delete)
}

// ListAvailable handles GET /payments/available-plans
func (h *Handler) ListAvailable(c *gin.Context) {
	plans, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		serviceUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// List handles GET /payments/plans (admin view, includes inactive plans)
func (h *Handler) List(c *gin.Context) {
	plans, err := h.service.List(c.Request.Context())
	if err != nil {
		serviceUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// Get handles GET /payments/plans/:plan_id
func (h *Handler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such payment plan",
			})
			return
		}
		serviceUnavailable(c)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /payments/plans
func (h *Handler) Create(c *gin.Context) {
	var f Fields
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid plan payload",
		})
		return
	}

	p, err := h.service.Create(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "name, price, and credits are required and must be positive",
			})
			return
		}
		serviceUnavailable(c)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// Update handles PUT /payments/plans/:plan_id
func (h *Handler) Update(c *gin.Context) {
	var f Fields
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid plan payload",
		})
		return
	}

	p, err := h.service.Update(c.Request.Context(), c.Param("plan_id"), f)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "name, price, and credits are required and must be positive",
			})
		case errors.Is(err, ErrPlanNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such payment plan",
			})
		default:
			serviceUnavailable(c)
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /payments/plans/:plan_id
//
// The plan is deactivated, never removed: orders and purchase transactions
// keep referencing it.
func (h *Handler) Delete(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such payment plan",
			})
			return
		}
		serviceUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "plan deactivated"})
}

func serviceUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "service_unavailable",
		"message": "Plan catalog is temporarily unavailable",
	})
}
