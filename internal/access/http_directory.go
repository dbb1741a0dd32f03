package access

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hirelens/payments/internal/circuitbreaker"
)

// breakerKey is the single circuit key: the directory is one upstream, so
// its endpoints trip and recover together.
const breakerKey = "hr_directory"

// HTTPDirectory talks to the HR backend's internal directory API.
//
// Expected endpoints:
//
//	GET {base}/internal/users/{email}/company -> {"company_id": "..."}
//	GET {base}/internal/resumes/{id}/owner    -> {"company_id": "..."}
//	GET {base}/internal/resumes/{id}          -> resume document (JSON)
//
// Calls run behind a circuit breaker: when the HR backend keeps failing,
// lookups fail fast with ErrDirectoryUnavailable instead of stacking up
// timed-out requests.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPDirectory creates a directory client for the given base URL.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (d *HTTPDirectory) CompanyOfUser(ctx context.Context, email string) (string, error) {
	var out struct {
		CompanyID string `json:"company_id"`
	}
	err := d.getJSON(ctx,
		fmt.Sprintf("/internal/users/%s/company", url.PathEscape(email)),
		&out, ErrUserNotFound)
	if err != nil {
		return "", err
	}
	return out.CompanyID, nil
}

func (d *HTTPDirectory) ResumeOwner(ctx context.Context, resumeID string) (string, error) {
	var out struct {
		CompanyID string `json:"company_id"`
	}
	err := d.getJSON(ctx,
		fmt.Sprintf("/internal/resumes/%s/owner", url.PathEscape(resumeID)),
		&out, ErrResumeNotFound)
	if err != nil {
		return "", err
	}
	return out.CompanyID, nil
}

func (d *HTTPDirectory) FetchResume(ctx context.Context, resumeID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := d.getJSON(ctx,
		fmt.Sprintf("/internal/resumes/%s", url.PathEscape(resumeID)),
		&out, ErrResumeNotFound)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, path string, out any, notFound error) error {
	if !d.breaker.Allow(breakerKey) {
		return ErrDirectoryUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.breaker.RecordFailure(breakerKey)
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The backend answered; a missing record is not an outage.
		d.breaker.RecordSuccess(breakerKey)
		return notFound
	case resp.StatusCode != http.StatusOK:
		d.breaker.RecordFailure(breakerKey)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory returned %d: %s", resp.StatusCode, body)
	}

	d.breaker.RecordSuccess(breakerKey)
	return json.NewDecoder(resp.Body).Decode(out)
}
