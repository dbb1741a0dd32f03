// Package webhooks delivers event notifications to integrator endpoints.
//
// Companies register webhook URLs to receive push notifications about their
// orders and credit balance, instead of polling the credits endpoints:
// order creation, payment settlement, and ledger debits/refunds.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hirelens/payments/internal/retry"
)

// EventType classifies a webhook event.
type EventType string

const (
	EventOrderCreated    EventType = "order.created"
	EventPaymentVerified EventType = "payment.verified"
	EventPaymentFailed   EventType = "payment.failed"
	EventCreditsDebited  EventType = "credits.debited"
	EventCreditsRefunded EventType = "credits.refunded"
)

// maxConsecutiveFailures disables a subscription once deliveries keep
// bouncing, so dead endpoints stop consuming dispatch capacity.
const maxConsecutiveFailures = 10

// Delivery retry policy. A 4xx from the endpoint is not retried; transport
// errors and 5xx responses back off and try again.
const (
	deliveryAttempts  = 3
	deliveryBaseDelay = 500 * time.Millisecond
	deliveryTimeout   = 30 * time.Second
)

// Event is one webhook delivery payload.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	CompanyID string         `json:"company_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscription is a company's registered webhook endpoint.
type Subscription struct {
	ID                  string      `json:"id"`
	CompanyID           string      `json:"company_id"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // HMAC signing key, shown once at creation
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"created_at"`
	LastSuccess         *time.Time  `json:"last_success,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// Wants reports whether the subscription covers an event type.
func (s *Subscription) Wants(t EventType) bool {
	for _, et := range s.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByCompany(ctx context.Context, companyID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher sends webhook events to a company's subscribed endpoints.
type Dispatcher struct {
	store  Store
	client *http.Client
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Dispatch sends an event to every active subscription of its company that
// covers the event type. Deliveries run async; Dispatch only fails when the
// subscription lookup does.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByCompany(ctx, event.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active || !sub.Wants(event.Type) {
			continue
		}
		go d.send(ctx, sub, event)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	// Deliveries outlive the emitting request: detach from its cancellation
	// and bound the whole attempt sequence with a deadline of our own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		d.recordFailure(ctx, sub, "failed to marshal event")
		return
	}

	err = retry.Do(ctx, deliveryAttempts, deliveryBaseDelay, func() error {
		return d.attempt(ctx, sub, event, payload)
	})
	if err != nil {
		d.recordFailure(ctx, sub, err.Error())
		return
	}
	d.recordSuccess(ctx, sub)
}

func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hirelens-Event", string(event.Type))
	req.Header.Set("X-Hirelens-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if sub.Secret != "" {
		req.Header.Set("X-Hirelens-Signature", sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	default:
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now().UTC()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) recordFailure(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if sub.ConsecutiveFailures >= maxConsecutiveFailures {
		sub.Active = false
	}
	_ = d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory subscription store for demo mode and tests.
// Reads return copies and writes store copies, so concurrent delivery
// goroutines never share a Subscription with callers.
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, fmt.Errorf("subscription not found")
}

func (m *MemoryStore) GetByCompany(ctx context.Context, companyID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.CompanyID == companyID {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
