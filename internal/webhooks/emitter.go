package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/order"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned,
// and a nil Emitter is safe to call.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(companyID string, eventType EventType, data map[string]any) {
	if e == nil || e.d == nil {
		return
	}
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		CompanyID: companyID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	// Bounds the subscription lookup only; deliveries detach from this
	// context inside the dispatcher.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed",
			"event", eventType, "companyId", companyID, "error", err)
	}
}

// EmitOrderCreated emits an order.created event.
func (e *Emitter) EmitOrderCreated(o *order.Order) {
	e.emit(o.CompanyID, EventOrderCreated, map[string]any{
		"order_id":   o.ID,
		"plan_id":    o.PlanID,
		"amount":     o.Amount.String(),
		"currency":   o.Currency,
		"credits":    o.Credits,
		"payment_id": o.PaymentRef,
	})
}

// EmitPaymentVerified emits a payment.verified event.
func (e *Emitter) EmitPaymentVerified(o *order.Order) {
	e.emit(o.CompanyID, EventPaymentVerified, map[string]any{
		"order_id":            o.ID,
		"payment_id":          o.PaymentRef,
		"razorpay_payment_id": o.GatewayPaymentID,
		"credits":             o.Credits,
	})
}

// EmitPaymentFailed emits a payment.failed event.
func (e *Emitter) EmitPaymentFailed(o *order.Order, reason string) {
	e.emit(o.CompanyID, EventPaymentFailed, map[string]any{
		"order_id":   o.ID,
		"payment_id": o.PaymentRef,
		"reason":     reason,
	})
}

// EmitCreditsDebited emits a credits.debited event.
func (e *Emitter) EmitCreditsDebited(account *ledger.Account, tx *ledger.Transaction) {
	e.emit(account.CompanyID, EventCreditsDebited, map[string]any{
		"transaction_id":    tx.ID,
		"credits":           tx.Credits,
		"hr_user":           tx.HRUser,
		"resume_id":         tx.ResumeID,
		"remaining_credits": account.RemainingCredits,
	})
}

// EmitCreditsRefunded emits a credits.refunded event.
func (e *Emitter) EmitCreditsRefunded(account *ledger.Account, tx *ledger.Transaction) {
	e.emit(account.CompanyID, EventCreditsRefunded, map[string]any{
		"transaction_id":    tx.ID,
		"credits":           tx.Credits,
		"remaining_credits": account.RemainingCredits,
	})
}

// LedgerBridge adapts the Emitter to the ledger's change notifications.
// Purchase entries are skipped here: the verifier already emits
// payment.verified for those.
type LedgerBridge struct {
	Emitter *Emitter
}

func (b LedgerBridge) AccountChanged(account *ledger.Account, tx *ledger.Transaction) {
	switch tx.Type {
	case ledger.TypeUsage:
		b.Emitter.EmitCreditsDebited(account, tx)
	case ledger.TypeRefund:
		b.Emitter.EmitCreditsRefunded(account, tx)
	}
}

// OrderBridge adapts the Emitter to order lifecycle events.
type OrderBridge struct {
	Emitter *Emitter
}

func (b OrderBridge) OrderCreated(o *order.Order) {
	b.Emitter.EmitOrderCreated(o)
}

// PaymentBridge adapts the Emitter to payment lifecycle events.
type PaymentBridge struct {
	Emitter *Emitter
}

func (b PaymentBridge) PaymentVerified(o *order.Order) {
	b.Emitter.EmitPaymentVerified(o)
}

func (b PaymentBridge) PaymentFailed(o *order.Order, reason string) {
	b.Emitter.EmitPaymentFailed(o, reason)
}
