package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/metrics"
	"github.com/hirelens/payments/internal/order"
	"github.com/hirelens/payments/internal/plan"
)

var (
	ErrMissingFields = errors.New("payment: missing callback fields")

	// ErrVerificationFailed is the only failure detail exposed to callers.
	// The specific cause (forged signature, unknown or expired order) is
	// logged server-side, never returned, so a probing client learns
	// nothing about order state.
	ErrVerificationFailed = errors.New("payment: verification failed")

	// ErrAlreadySettled is returned by settlers when a concurrent callback
	// won the race. The verifier folds it into the idempotent success path.
	ErrAlreadySettled = errors.New("payment: order already settled")
)

// VerifyRequest is the signed confirmation the hosted checkout posts back.
type VerifyRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	PaymentID         string `json:"payment_id"`
}

// Result is the outcome of a successful (or idempotently repeated)
// verification.
type Result struct {
	PaymentID        string
	GatewayPaymentID string
	Credits          int64
	AlreadySettled   bool
}

// Settler atomically commits a verified order: the pending -> verified
// transition, the purchase transaction, and the account increment happen
// together or not at all. Returns ErrAlreadySettled when another callback
// settled the order first.
type Settler interface {
	Settle(ctx context.Context, o *order.Order, gatewayPaymentID, description string) (*ledger.Account, *ledger.Transaction, error)
}

// Events receives payment lifecycle notifications. Implementations must not
// block.
type Events interface {
	PaymentVerified(o *order.Order)
	PaymentFailed(o *order.Order, reason string)
}

// Verifier checks gateway callbacks and settles matching orders.
type Verifier struct {
	orders   order.Store
	plans    *plan.Service
	settler  Settler
	secret   string
	logger   *slog.Logger
	notifier ledger.Notifier // optional
	events   Events          // optional
}

// NewVerifier creates a verifier bound to the gateway key secret.
func NewVerifier(orders order.Store, plans *plan.Service, settler Settler, secret string, logger *slog.Logger) *Verifier {
	return &Verifier{
		orders:  orders,
		plans:   plans,
		settler: settler,
		secret:  secret,
		logger:  logger,
	}
}

// SetNotifier attaches a ledger change notifier. Call before serving traffic.
func (v *Verifier) SetNotifier(n ledger.Notifier) {
	v.notifier = n
}

// SetEvents attaches a payment event sink. Call before serving traffic.
func (v *Verifier) SetEvents(e Events) {
	v.events = e
}

// Verify validates a checkout callback and, on the first valid callback for
// an order, credits the buyer's company. A repeated valid callback returns
// the prior result without crediting again. A tampered signature fails the
// pending order; a verified order is never overwritten.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*Result, error) {
	if req.RazorpayPaymentID == "" || req.RazorpayOrderID == "" ||
		req.RazorpaySignature == "" || req.PaymentID == "" {
		return nil, ErrMissingFields
	}

	o, err := v.orders.GetByPaymentRef(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			metrics.VerificationsTotal.WithLabelValues("unknown_order").Inc()
			v.logger.Warn("verification for unknown payment reference",
				"paymentId", req.PaymentID)
			return nil, ErrVerificationFailed
		}
		return nil, err
	}

	// The signature covers the gateway order id we issued, not the one the
	// client claims, so a callback replayed against another order fails.
	sigOK := req.RazorpayOrderID == o.GatewayOrderID &&
		signatureValid(v.secret, o.GatewayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)

	if !sigOK {
		metrics.VerificationsTotal.WithLabelValues("signature_mismatch").Inc()
		v.logger.Warn("payment signature mismatch",
			"orderId", o.ID,
			"paymentId", o.PaymentRef,
		)
		v.failOrder(ctx, o, order.ReasonSignatureMismatch)
		return nil, ErrVerificationFailed
	}

	switch o.Status {
	case order.StatusVerified:
		// Duplicate callback for a settled order. Exactly-once: return the
		// prior result, never credit again.
		metrics.VerificationsTotal.WithLabelValues("duplicate").Inc()
		return &Result{
			PaymentID:        o.PaymentRef,
			GatewayPaymentID: o.GatewayPaymentID,
			Credits:          o.Credits,
			AlreadySettled:   true,
		}, nil
	case order.StatusFailed:
		// Expired or cancelled checkouts never settle, even with a valid
		// late signature.
		metrics.VerificationsTotal.WithLabelValues("error").Inc()
		v.logger.Warn("valid callback for failed order",
			"orderId", o.ID, "reason", o.FailureReason)
		return nil, ErrVerificationFailed
	}

	account, tx, err := v.settler.Settle(ctx, o, req.RazorpayPaymentID, v.purchaseDescription(ctx, o))
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			metrics.VerificationsTotal.WithLabelValues("duplicate").Inc()
			return &Result{
				PaymentID:        o.PaymentRef,
				GatewayPaymentID: req.RazorpayPaymentID,
				Credits:          o.Credits,
				AlreadySettled:   true,
			}, nil
		}
		metrics.VerificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	metrics.CreditsPurchasedTotal.Add(float64(o.Credits))
	v.logger.Info("payment verified and settled",
		"orderId", o.ID,
		"paymentId", o.PaymentRef,
		"companyId", o.CompanyID,
		"credits", o.Credits,
	)

	if v.notifier != nil {
		v.notifier.AccountChanged(account, tx)
	}
	if v.events != nil {
		o.Status = order.StatusVerified
		o.GatewayPaymentID = req.RazorpayPaymentID
		v.events.PaymentVerified(o)
	}

	return &Result{
		PaymentID:        o.PaymentRef,
		GatewayPaymentID: req.RazorpayPaymentID,
		Credits:          o.Credits,
	}, nil
}

// failOrder moves a pending order to failed. Terminal orders are left alone.
func (v *Verifier) failOrder(ctx context.Context, o *order.Order, reason string) {
	if o.Status != order.StatusPending {
		return
	}
	if err := v.orders.MarkFailed(ctx, o.ID, reason); err != nil {
		if !errors.Is(err, order.ErrOrderNotPending) {
			v.logger.Warn("failed to mark order failed", "orderId", o.ID, "error", err)
		}
		return
	}
	if v.events != nil {
		o.Status = order.StatusFailed
		o.FailureReason = reason
		v.events.PaymentFailed(o, reason)
	}
}

func (v *Verifier) purchaseDescription(ctx context.Context, o *order.Order) string {
	if p, err := v.plans.Get(ctx, o.PlanID); err == nil {
		return fmt.Sprintf("Purchased %d credits via %s plan", o.Credits, p.Name)
	}
	return fmt.Sprintf("Purchased %d credits", o.Credits)
}
