// Package order creates and tracks payment orders.
//
// An order is born pending, with the plan's price snapshotted onto it, and a
// matching order opened at the payment gateway. It reaches exactly one of two
// terminal states: verified (signature checked, credits granted) or failed
// (bad signature, cancelled checkout, or expiry). Terminal orders never
// transition again.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/metrics"
	"github.com/hirelens/payments/internal/plan"
)

var (
	ErrOrderNotFound   = errors.New("order: not found")
	ErrOrderNotPending = errors.New("order: not pending")
	ErrUnknownPlan     = errors.New("order: unknown plan")
	ErrPlanInactive    = errors.New("order: plan is inactive")
	ErrInvalidRequest  = errors.New("order: missing required fields")
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Failure reasons recorded on failed orders.
const (
	ReasonCheckoutExpired   = "checkout_expired"
	ReasonSignatureMismatch = "signature_mismatch"
)

// Order is a single purchase attempt for a credit plan.
//
// Amount and Credits are snapshots of the plan at creation time; later plan
// edits never change what a pending order charges or grants.
type Order struct {
	ID               string          `json:"id"`
	PlanID           string          `json:"plan_id"`
	BuyerEmail       string          `json:"buyer_email"`
	CompanyID        string          `json:"company_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Credits          int64           `json:"credits"`
	Status           Status          `json:"status"`
	PaymentRef       string          `json:"payment_id"`
	GatewayOrderID   string          `json:"razorpay_order_id"`
	GatewayPaymentID string          `json:"razorpay_payment_id,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Terminal reports whether the order has reached a final state.
func (o *Order) Terminal() bool {
	return o.Status == StatusVerified || o.Status == StatusFailed
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetByPaymentRef looks up the order matching a verification callback.
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	ListByCompany(ctx context.Context, companyID string) ([]*Order, error)
	// MarkVerified transitions pending -> verified, recording the gateway
	// payment id. Returns ErrOrderNotPending for terminal orders.
	MarkVerified(ctx context.Context, id, gatewayPaymentID string) error
	// MarkFailed transitions pending -> failed with a reason. Verified
	// orders are never overwritten.
	MarkFailed(ctx context.Context, id, reason string) error
	// ExpireStale fails every pending order created before the cutoff and
	// returns how many it touched.
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
}

// Gateway opens an order with the external payment provider. The returned id
// is the provider's order handle used by the hosted checkout.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
}

// Companies resolves a buyer's email to their company. Backed by the HR
// directory service.
type Companies interface {
	CompanyOfUser(ctx context.Context, email string) (string, error)
}

// Events receives order lifecycle notifications. Implementations must not
// block.
type Events interface {
	OrderCreated(o *Order)
}

// Service creates pending orders against the plan catalog and gateway.
type Service struct {
	store     Store
	plans     *plan.Service
	gateway   Gateway
	companies Companies
	currency  string
	events    Events // optional
}

// NewService creates an order service.
func NewService(store Store, plans *plan.Service, gateway Gateway, companies Companies, currency string) *Service {
	return &Service{
		store:     store,
		plans:     plans,
		gateway:   gateway,
		companies: companies,
		currency:  currency,
	}
}

// SetEvents attaches an order event sink. Call before serving traffic.
func (s *Service) SetEvents(e Events) {
	s.events = e
}

// Create opens a pending order for a plan purchase.
//
// The plan must exist and be active. The plan's price and credit count are
// snapshotted onto the order, and a matching order is opened at the gateway
// before the row is persisted.
func (s *Service) Create(ctx context.Context, planID, buyerEmail string) (*Order, error) {
	if planID == "" || buyerEmail == "" {
		return nil, ErrInvalidRequest
	}

	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, ErrUnknownPlan
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPlanInactive
	}

	companyID, err := s.companies.CompanyOfUser(ctx, buyerEmail)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:         newOrderID(),
		PlanID:     p.ID,
		BuyerEmail: buyerEmail,
		CompanyID:  companyID,
		Amount:     p.Price,
		Currency:   s.currency,
		Credits:    p.Credits,
		Status:     StatusPending,
		PaymentRef: newPaymentRef(),
	}

	// Gateways bill in minor units (paise for INR).
	amountMinor := p.Price.Shift(2).IntPart()
	gatewayOrderID, err := s.gateway.CreateOrder(ctx, amountMinor, o.Currency, o.ID)
	if err != nil {
		return nil, err
	}
	o.GatewayOrderID = gatewayOrderID

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	if s.events != nil {
		s.events.OrderCreated(o)
	}
	return o, nil
}

// Get returns an order by its id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

// ListByCompany returns a company's orders, newest first.
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]*Order, error) {
	return s.store.ListByCompany(ctx, companyID)
}

// ExpireStale fails every pending order older than the TTL. Expired orders
// can never settle; a late gateway callback for one fails verification.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.store.ExpireStale(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.OrdersExpiredTotal.Add(float64(n))
	}
	return n, nil
}

func newOrderID() string {
	return idgen.WithPrefix("ord_")
}

func newPaymentRef() string {
	return idgen.WithPrefix("pay_")
}
