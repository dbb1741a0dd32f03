// Package auth guards the operator-only API surface.
//
// End-user authentication lives in the main HR backend; this service only
// distinguishes operators (plan management, refunds, reconciliation) from
// everyone else via a shared admin secret.
package auth

import (
	"crypto/hmac"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminSecret carries the operator secret on admin requests.
const HeaderAdminSecret = "X-Admin-Secret"

// RequireAdmin rejects requests that do not carry the configured admin
// secret. With no secret configured the whole admin surface is disabled,
// never open.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured on this deployment",
			})
			return
		}

		got := c.GetHeader(HeaderAdminSecret)
		if got == "" || !hmac.Equal([]byte(got), []byte(secret)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Valid " + HeaderAdminSecret + " header required",
			})
			return
		}

		c.Next()
	}
}
