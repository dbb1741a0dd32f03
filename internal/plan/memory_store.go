package plan

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory plan store for demo mode and tests.
type MemoryStore struct {
	plans map[string]*Plan
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*Plan)}
}

func (m *MemoryStore) List(ctx context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(*Plan) bool { return true }), nil
}

func (m *MemoryStore) ListActive(ctx context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(p *Plan) bool { return p.IsActive }), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plans[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrPlanNotFound
}

func (m *MemoryStore) Create(ctx context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return ErrPlanNotFound
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	p.IsActive = false
	return nil
}

// sorted returns matching plans ordered by creation time ascending, with ID
// as tiebreaker so the order is stable.
func (m *MemoryStore) sorted(match func(*Plan) bool) []*Plan {
	out := make([]*Plan, 0, len(m.plans))
	for _, p := range m.plans {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
