package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the payments API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// PaymentsClient is a pure HTTP client for the payments platform API.
// All MCP tools are read-only, so every method is a GET.
type PaymentsClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPaymentsClient creates a new client for the payments API.
func NewPaymentsClient(cfg Config) *PaymentsClient {
	return &PaymentsClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes a GET request to the platform and returns the response body.
func (c *PaymentsClient) doRequest(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListPlans returns the purchasable credit plans.
func (c *PaymentsClient) ListPlans(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, "/payments/available-plans", nil)
}

// GetCreditBalance returns the credit account for a company.
func (c *PaymentsClient) GetCreditBalance(ctx context.Context, companyID string) (json.RawMessage, error) {
	path := "/payments/company/" + url.PathEscape(companyID) + "/credits"
	return c.doRequest(ctx, path, nil)
}

// ListTransactions returns recent credit transactions for a company.
func (c *PaymentsClient) ListTransactions(ctx context.Context, companyID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/payments/company/" + url.PathEscape(companyID) + "/transactions"
	return c.doRequest(ctx, path, q)
}

// CheckResumeAccess asks whether an HR user may view a resume. Never charges.
func (c *PaymentsClient) CheckResumeAccess(ctx context.Context, resumeID, hrEmail string) (json.RawMessage, error) {
	path := "/payments/check-credits/" + url.PathEscape(resumeID) + "/" + url.PathEscape(hrEmail)
	return c.doRequest(ctx, path, nil)
}
