// Package validation provides input validation middleware for the payments API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// emailRegex is a permissive shape check, not RFC 5322. The HR backend is
	// the authority on whether the address belongs to a real user.
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// idRegex validates platform identifiers (plan_*, ord_*, co_*, res_*)
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEmail checks if a string looks like an email address
func IsValidEmail(s string) bool {
	return len(s) <= 254 && emailRegex.MatchString(s)
}

// IsValidID checks if a string is a well-formed platform identifier
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidEmail checks if a field is a well-formed email address
func ValidEmail(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidEmail(value) {
			return &ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// EmailParamMiddleware validates the :hr_email URL parameter on routes that
// use it, rejecting malformed addresses before any ledger work happens.
func EmailParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Param("hr_email")
		if email != "" && !IsValidEmail(email) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_email",
				"message": "hr_email must be a valid email address",
			})
			return
		}
		c.Next()
	}
}
