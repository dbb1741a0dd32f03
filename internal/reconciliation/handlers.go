package reconciliation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes on-demand reconciliation to operators.
type Handler struct {
	runner *Runner
}

// NewHandler creates a new reconciliation handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterAdminRoutes sets up the admin reconciliation route.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/reconciliation", h.Run)
}

// Run handles GET /v1/admin/reconciliation
func (h *Handler) Run(c *gin.Context) {
	report, err := h.runner.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Reconciliation could not complete",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
