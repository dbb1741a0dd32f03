// Package plan manages the catalog of purchasable credit bundles.
//
// Plans map a price to a number of resume-view credits. The purchase UI lists
// only active plans; the admin console sees the full catalog. Plans referenced
// by orders or transactions are never physically deleted — deactivation is the
// only removal.
package plan

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hirelens/payments/internal/idgen"
)

var (
	ErrPlanNotFound = errors.New("plan: not found")
	ErrValidation   = errors.New("plan: invalid fields")
)

// Plan is a purchasable credit bundle.
type Plan struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Credits     int64           `json:"credits"`
	Description string          `json:"description"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Fields is the mutable subset of a plan used by create and update.
type Fields struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Credits     int64           `json:"credits"`
	Description string          `json:"description"`
	IsActive    *bool           `json:"is_active"`
}

// Store persists the plan catalog.
type Store interface {
	// List returns every plan, active and inactive, ordered by creation
	// time ascending.
	List(ctx context.Context) ([]*Plan, error)
	// ListActive returns only active plans, same ordering as List.
	ListActive(ctx context.Context) ([]*Plan, error)
	Get(ctx context.Context, id string) (*Plan, error)
	Create(ctx context.Context, p *Plan) error
	Update(ctx context.Context, p *Plan) error
	// Deactivate clears is_active. The row is kept so historical orders and
	// transactions retain a valid plan reference.
	Deactivate(ctx context.Context, id string) error
}

// Service wraps a Store with catalog validation rules.
type Service struct {
	store Store
}

// NewService creates a plan service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the full catalog for the admin view.
func (s *Service) List(ctx context.Context) ([]*Plan, error) {
	return s.store.List(ctx)
}

// ListAvailable returns active plans for the purchase UI.
func (s *Service) ListAvailable(ctx context.Context) ([]*Plan, error) {
	return s.store.ListActive(ctx)
}

// Get returns a single plan by ID.
func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	return s.store.Get(ctx, id)
}

// Create validates fields and adds a new plan to the catalog.
func (s *Service) Create(ctx context.Context, f Fields) (*Plan, error) {
	if err := validate(f); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Plan{
		ID:          newPlanID(),
		Name:        f.Name,
		Price:       f.Price,
		Credits:     f.Credits,
		Description: f.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if f.IsActive != nil {
		p.IsActive = *f.IsActive
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update validates fields and replaces the mutable parts of an existing plan.
// Orders created before the update keep their snapshotted price.
func (s *Service) Update(ctx context.Context, id string, f Fields) (*Plan, error) {
	if err := validate(f); err != nil {
		return nil, err
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = f.Name
	p.Price = f.Price
	p.Credits = f.Credits
	p.Description = f.Description
	if f.IsActive != nil {
		p.IsActive = *f.IsActive
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete deactivates a plan. Physical deletion is deliberately unsupported:
// settled orders and purchase transactions reference plan IDs forever.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Deactivate(ctx, id)
}

func newPlanID() string {
	return idgen.WithPrefix("plan_")
}

func validate(f Fields) error {
	if f.Name == "" {
		return ErrValidation
	}
	if f.Price.Sign() <= 0 {
		return ErrValidation
	}
	if f.Credits <= 0 {
		return ErrValidation
	}
	return nil
}
