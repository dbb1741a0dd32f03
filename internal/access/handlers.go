package access

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hirelens/payments/internal/ledger"
)

// Handler provides the resume access-check and view endpoints.
type Handler struct {
	gate *Gate
}

// NewHandler creates a new access handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// RegisterRoutes sets up the access gate routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/check-credits/:resume_id/:hr_email", h.CheckCredits)
	r.POST("/view-resume/:resume_id/:hr_email", h.ViewResume)
}

// CheckCredits handles GET /payments/check-credits/:resume_id/:hr_email
func (h *Handler) CheckCredits(c *gin.Context) {
	decision, err := h.gate.CheckAccess(c.Request.Context(),
		c.Param("resume_id"), c.Param("hr_email"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ViewResume handles POST /payments/view-resume/:resume_id/:hr_email
func (h *Handler) ViewResume(c *gin.Context) {
	view, err := h.gate.ViewResume(c.Request.Context(),
		c.Param("resume_id"), c.Param("hr_email"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown HR user",
		})
	case errors.Is(err, ErrResumeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown resume",
		})
	case errors.Is(err, ledger.ErrInsufficientCredits):
		resp := gin.H{
			"error":            "insufficient_credits",
			"message":          "Not enough credits to view this resume",
			"credits_required": h.gate.ViewCost(),
		}
		// Re-read the balance so the caller knows how short they are.
		if d, derr := h.gate.CheckAccess(c.Request.Context(),
			c.Param("resume_id"), c.Param("hr_email")); derr == nil {
			resp["remaining_credits"] = d.RemainingCredits
		}
		c.JSON(http.StatusPaymentRequired, resp)
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Resume access is temporarily unavailable",
		})
	}
}
