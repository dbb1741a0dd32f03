package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/hirelens/payments/internal/ledger"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventCreditUsage, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventCreditPurchase, EventCreditRefund},
	}}

	purchase := &Event{Type: EventCreditPurchase}
	refund := &Event{Type: EventCreditRefund}
	usage := &Event{Type: EventCreditUsage}

	if !h.shouldSend(client, purchase) {
		t.Error("Should receive credit_purchase events")
	}
	if !h.shouldSend(client, refund) {
		t.Error("Should receive credit_refund events")
	}
	if h.shouldSend(client, usage) {
		t.Error("Should NOT receive credit_usage events")
	}
}

func TestShouldSend_CompanyFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		CompanyIDs: []string{"co_acme"},
	}}

	own := &Event{Type: EventCreditUsage, CompanyID: "co_acme"}
	other := &Event{Type: EventCreditUsage, CompanyID: "co_globex"}

	if !h.shouldSend(client, own) {
		t.Error("Should match own company")
	}
	if h.shouldSend(client, other) {
		t.Error("Should NOT match another company")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventCreditUsage}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connected_clients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connected_clients"])
	}
	if stats["total_events"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["total_events"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connected_clients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connected_clients"])
	}
	if stats["peak_clients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peak_clients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connected_clients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connected_clients"])
	}
	if stats["peak_clients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peak_clients"])
	}
}

func TestHub_AccountChangedBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{CompanyIDs: []string{"co_acme"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.AccountChanged(
		&ledger.Account{CompanyID: "co_acme", TotalCredits: 50, UsedCredits: 1, RemainingCredits: 49},
		&ledger.Transaction{ID: "txn_1", CompanyID: "co_acme", Type: ledger.TypeUsage, Credits: -1},
	)

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if event.Type != EventCreditUsage {
			t.Errorf("Expected credit_usage event, got %s", event.Type)
		}
		if event.CompanyID != "co_acme" {
			t.Errorf("Expected co_acme, got %s", event.CompanyID)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for ledger broadcast")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants another company's events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{CompanyIDs: []string{"co_globex"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{Type: EventCreditUsage, CompanyID: "co_acme", Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive another company's event")
	default:
		// Good - filtered out
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
