package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides the payment verification endpoint.
type Handler struct {
	verifier *Verifier
}

// NewHandler creates a new payment handler.
func NewHandler(verifier *Verifier) *Handler {
	return &Handler{verifier: verifier}
}

// RegisterRoutes sets up the checkout callback route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/verify-payment", h.Verify)
}

// Verify handles POST /payments/verify-payment
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "razorpay_payment_id, razorpay_order_id, razorpay_signature, and payment_id are required",
		})
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFields):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "razorpay_payment_id, razorpay_order_id, razorpay_signature, and payment_id are required",
			})
		case errors.Is(err, ErrVerificationFailed):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "payment_verification_failed",
				"message": "Payment could not be verified",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "service_unavailable",
				"message": "Payment verification is temporarily unavailable",
			})
		}
		return
	}

	message := "Payment verified and credits added successfully"
	if result.AlreadySettled {
		message = "Payment already verified"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             message,
		"payment_id":          result.PaymentID,
		"razorpay_payment_id": result.GatewayPaymentID,
	})
}
