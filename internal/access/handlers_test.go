package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelens/payments/internal/ledger"
)

func newAccessRouter(gate *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(gate).RegisterRoutes(r.Group("/payments"))
	return r
}

func TestCheckCreditsEndpoint(t *testing.T) {
	gate, _, ldg := newTestGate(t)
	r := newAccessRouter(gate)

	_, err := ldg.Credit(context.Background(), "co_acme", 50, ledger.CreditRef{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/payments/check-credits/resume_globex/hr@acme.com", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var d Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.True(t, d.CanView)
	assert.Equal(t, int64(1), d.CreditsRequired)
	assert.Equal(t, int64(50), d.RemainingCredits)
	assert.Equal(t, int64(50), d.TotalCredits)
	assert.Equal(t, int64(0), d.UsedCredits)
}

func TestViewResumeEndpoint_PaymentRequired(t *testing.T) {
	gate, _, _ := newTestGate(t)
	r := newAccessRouter(gate)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/payments/view-resume/resume_globex/hr@acme.com", nil))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Error            string `json:"error"`
		CreditsRequired  int64  `json:"credits_required"`
		RemainingCredits *int64 `json:"remaining_credits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_credits", body.Error)
	assert.Equal(t, int64(1), body.CreditsRequired)
	require.NotNil(t, body.RemainingCredits)
	assert.Equal(t, int64(0), *body.RemainingCredits)
}

func TestViewResumeEndpoint_UnknownResume(t *testing.T) {
	gate, _, _ := newTestGate(t)
	r := newAccessRouter(gate)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/payments/view-resume/resume_ghost/hr@acme.com", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
