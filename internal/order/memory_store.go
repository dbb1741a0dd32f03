package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory order store for demo mode and tests.
type MemoryStore struct {
	orders map[string]*Order
	byRef  map[string]string // payment ref -> order id
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		byRef:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *o
	m.orders[o.ID] = &cp
	m.byRef[o.PaymentRef] = o.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[ref]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *MemoryStore) ListByCompany(ctx context.Context, companyID string) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Order, 0)
	for _, o := range m.orders {
		if o.CompanyID == companyID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) MarkVerified(ctx context.Context, id, gatewayPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != StatusPending {
		return ErrOrderNotPending
	}

	o.Status = StatusVerified
	o.GatewayPaymentID = gatewayPaymentID
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != StatusPending {
		return ErrOrderNotPending
	}

	o.Status = StatusFailed
	o.FailureReason = reason
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, o := range m.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(before) {
			o.Status = StatusFailed
			o.FailureReason = ReasonCheckoutExpired
			o.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
