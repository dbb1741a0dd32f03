package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewPaymentsClient(Config{APIURL: ts.URL})
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "Unknown resume",
		})
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	_, err := client.CheckResumeAccess(context.Background(), "res_x", "hr@acme.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Unknown resume")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	_, err := client.ListPlans(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewPaymentsClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.ListPlans(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	_, err := client.ListPlans(ctx)
	require.Error(t, err)
}

func TestClient_ListTransactions_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/company/co_acme/transactions", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	_, err := client.ListTransactions(context.Background(), "co_acme", 5)
	require.NoError(t, err)
}

func TestClient_ListTransactions_ZeroLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	_, err := client.ListTransactions(context.Background(), "co_acme", 0)
	require.NoError(t, err)
}

func TestClient_CheckResumeAccess_EscapesPathSegments(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewPaymentsClient(Config{APIURL: ts.URL})
	_, err := client.CheckResumeAccess(context.Background(), "res 1", "hr@acme.example")
	require.NoError(t, err)
	assert.Contains(t, gotPath, "res%201")
}

// ============================================================
// Handler: list_plans
// ============================================================

func TestHandleListPlans(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/available-plans", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": "plan_starter", "name": "Starter", "price": "999",
				"credits": 50, "description": "Entry-level pack", "is_active": true,
			},
			{
				"id": "plan_ent", "name": "Enterprise", "price": "4999",
				"credits": 500, "is_active": true,
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListPlans(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 plan(s)")
	assert.Contains(t, text, "Starter")
	assert.Contains(t, text, "999 INR")
	assert.Contains(t, text, "Credits: 50")
	assert.Contains(t, text, "Enterprise")
	assert.Contains(t, text, "plan_ent")
	assert.Contains(t, text, "Entry-level pack")
}

func TestHandleListPlans_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/available-plans", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListPlans(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No plans are currently available")
}

func TestHandleListPlans_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/available-plans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "service_unavailable", "message": "Plan catalog is temporarily unavailable",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListPlans(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Plan catalog is temporarily unavailable")
}

// ============================================================
// Handler: get_credit_balance
// ============================================================

func TestHandleGetCreditBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/company/co_acme/credits", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"company_id":        "co_acme",
			"total_credits":     150,
			"used_credits":      42,
			"remaining_credits": 108,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetCreditBalance(context.Background(), makeRequest(map[string]any{
		"company_id": "co_acme",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "co_acme")
	assert.Contains(t, text, "Remaining: 108")
	assert.Contains(t, text, "Purchased: 150")
	assert.Contains(t, text, "Used:      42")
}

func TestHandleGetCreditBalance_MissingCompanyID(t *testing.T) {
	h := NewHandlers(NewPaymentsClient(Config{}))
	result, err := h.HandleGetCreditBalance(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "company_id is required")
}

func TestHandleGetCreditBalance_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/company/co_acme/credits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "service_unavailable", "message": "Credit ledger is temporarily unavailable",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetCreditBalance(context.Background(), makeRequest(map[string]any{
		"company_id": "co_acme",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Credit ledger is temporarily unavailable")
}

// ============================================================
// Handler: list_transactions
// ============================================================

func TestHandleListTransactions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/company/co_acme/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"), "default limit should be sent")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": "txn_2", "company_id": "co_acme", "transaction_type": "usage",
				"credits": -1, "description": "Viewed resume res_9",
				"hr_user": "hr@acme.example", "resume_id": "res_9",
				"created_at": "2026-08-30T12:00:00Z",
			},
			{
				"id": "txn_1", "company_id": "co_acme", "transaction_type": "purchase",
				"credits": 150, "description": "Purchased 150 credits via Professional plan",
				"created_at": "2026-08-29T09:00:00Z",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListTransactions(context.Background(), makeRequest(map[string]any{
		"company_id": "co_acme",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 transaction(s)")
	assert.Contains(t, text, "usage -1 credit(s)")
	assert.Contains(t, text, "purchase +150 credit(s)")
	assert.Contains(t, text, "res_9")
	assert.Contains(t, text, "hr@acme.example")
}

func TestHandleListTransactions_MissingCompanyID(t *testing.T) {
	h := NewHandlers(NewPaymentsClient(Config{}))
	result, err := h.HandleListTransactions(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "company_id is required")
}

func TestHandleListTransactions_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/company/co_new/transactions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListTransactions(context.Background(), makeRequest(map[string]any{
		"company_id": "co_new",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No transactions found")
}

func TestHandleListTransactions_CustomLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/company/co_acme/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	h.HandleListTransactions(context.Background(), makeRequest(map[string]any{
		"company_id": "co_acme",
		"limit":      float64(3), // JSON numbers come as float64
	}))
}

// ============================================================
// Handler: check_resume_access
// ============================================================

func TestHandleCheckResumeAccess_Allowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/check-credits/res_7/hr@acme.example", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"can_view":          true,
			"reason":            "sufficient_credits",
			"credits_required":  1,
			"remaining_credits": 12,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{
		"resume_id": "res_7",
		"hr_email":  "hr@acme.example",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Access: allowed")
	assert.Contains(t, text, "sufficient_credits")
	assert.Contains(t, text, "Remaining: 12")
	assert.NotContains(t, text, "purchase more credits")
}

func TestHandleCheckResumeAccess_Denied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/check-credits/res_7/hr@broke.example", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"can_view":          false,
			"reason":            "insufficient_credits",
			"credits_required":  1,
			"remaining_credits": 0,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{
		"resume_id": "res_7",
		"hr_email":  "hr@broke.example",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Access: denied")
	assert.Contains(t, text, "insufficient_credits")
	assert.Contains(t, text, "purchase more credits")
}

func TestHandleCheckResumeAccess_MissingArgs(t *testing.T) {
	h := NewHandlers(NewPaymentsClient(Config{}))

	result, err := h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{
		"hr_email": "hr@acme.example",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "resume_id is required")

	result, err = h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{
		"resume_id": "res_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "hr_email is required")
}

func TestHandleCheckResumeAccess_UnknownResume(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/check-credits/res_gone/hr@acme.example", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "not_found", "message": "Unknown resume",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{
		"resume_id": "res_gone",
		"hr_email":  "hr@acme.example",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Unknown resume")
}

// ============================================================
// Formatting unit tests
// ============================================================

func TestFormatPlanList_MalformedJSON(t *testing.T) {
	_, err := formatPlanList(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestFormatBalance_MalformedJSON(t *testing.T) {
	_, err := formatBalance(json.RawMessage(`garbage`))
	assert.Error(t, err)
}

func TestFormatTransactionList_MalformedJSON(t *testing.T) {
	_, err := formatTransactionList(json.RawMessage(`garbage`))
	assert.Error(t, err)
}

func TestFormatTransactionList_PurchaseWithoutResume(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":"txn_1","transaction_type":"purchase","credits":50,"description":"Purchased 50 credits via Starter plan","created_at":"2026-08-29T09:00:00Z"}
	]`)
	text, err := formatTransactionList(raw)
	require.NoError(t, err)
	assert.Contains(t, text, "purchase +50 credit(s)")
	assert.NotContains(t, text, "Resume:")
}

func TestFormatDecision_MalformedJSON(t *testing.T) {
	_, err := formatDecision(json.RawMessage(`garbage`))
	assert.Error(t, err)
}

// ============================================================
// Concurrency / race detection
// ============================================================

func TestHandlers_ConcurrentCalls(t *testing.T) {
	var callCount atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/payments/available-plans", func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/payments/company/co_acme/credits", func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"company_id": "co_acme", "total_credits": 10, "used_credits": 0, "remaining_credits": 10,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			h.HandleListPlans(context.Background(), makeRequest(nil))
			h.HandleGetCreditBalance(context.Background(), makeRequest(map[string]any{"company_id": "co_acme"}))
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, int32(40), callCount.Load())
}

// ============================================================
// Edge cases: handler never returns Go error
// ============================================================

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// All handlers should return (result, nil) even on failures.
	// The failure is encoded in result.IsError, not in the Go error.
	h := NewHandlers(NewPaymentsClient(Config{
		APIURL: "http://127.0.0.1:1", // unreachable
	}))

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"ListPlans", func() (*mcp.CallToolResult, error) {
			return h.HandleListPlans(context.Background(), makeRequest(nil))
		}},
		{"GetCreditBalance", func() (*mcp.CallToolResult, error) {
			return h.HandleGetCreditBalance(context.Background(), makeRequest(map[string]any{"company_id": "co_a"}))
		}},
		{"ListTransactions", func() (*mcp.CallToolResult, error) {
			return h.HandleListTransactions(context.Background(), makeRequest(map[string]any{"company_id": "co_a"}))
		}},
		{"CheckResumeAccess", func() (*mcp.CallToolResult, error) {
			return h.HandleCheckResumeAccess(context.Background(), makeRequest(map[string]any{"resume_id": "r1", "hr_email": "h@x"}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			assert.NoError(t, err, "handler should never return Go error")
			assert.NotNil(t, result, "handler should always return a result")
			assert.True(t, result.IsError, "unreachable server should produce isError result")
		})
	}
}

// ============================================================
// Server wiring test
// ============================================================

func TestNewMCPServer_RegistersAllTools(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
