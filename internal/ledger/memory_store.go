package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger store for demo mode and tests.
// A single mutex serializes all mutations, which is what gives the memory
// implementation the same never-negative guarantee the Postgres store gets
// from row locking and CHECK constraints.
type MemoryStore struct {
	accounts map[string]*Account
	entries  []*Transaction
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		entries:  make([]*Transaction, 0),
	}
}

func (m *MemoryStore) GetAccount(ctx context.Context, companyID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[companyID]; ok {
		cp := *acc
		return &cp, nil
	}
	return &Account{CompanyID: companyID, UpdatedAt: time.Now().UTC()}, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, companyID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// entries is append-ordered; walk backwards for newest-first.
	out := make([]*Transaction, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].CompanyID == companyID {
			cp := *m.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Debit(ctx context.Context, companyID string, credits int64, ref UsageRef) (*Account, *Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[companyID]
	if !ok || acc.RemainingCredits < credits {
		return nil, nil, ErrInsufficientCredits
	}

	acc.UsedCredits += credits
	acc.RemainingCredits -= credits
	acc.UpdatedAt = time.Now().UTC()

	tx := &Transaction{
		ID:          newTransactionID(),
		CompanyID:   companyID,
		Type:        TypeUsage,
		Credits:     -credits,
		Description: ref.Description,
		HRUser:      ref.HRUser,
		ResumeID:    ref.ResumeID,
		CreatedAt:   acc.UpdatedAt,
	}
	m.entries = append(m.entries, tx)

	accCopy, txCopy := *acc, *tx
	return &accCopy, &txCopy, nil
}

func (m *MemoryStore) Credit(ctx context.Context, companyID string, credits int64, txType Type, ref CreditRef) (*Account, *Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[companyID]
	if !ok {
		acc = &Account{CompanyID: companyID}
		m.accounts[companyID] = acc
	}

	acc.TotalCredits += credits
	acc.RemainingCredits += credits
	acc.UpdatedAt = time.Now().UTC()

	tx := &Transaction{
		ID:               newTransactionID(),
		CompanyID:        companyID,
		Type:             txType,
		Credits:          credits,
		Description:      ref.Description,
		PaymentReference: ref.PaymentReference,
		CreatedAt:        acc.UpdatedAt,
	}
	m.entries = append(m.entries, tx)

	accCopy, txCopy := *acc, *tx
	return &accCopy, &txCopy, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		cp := *acc
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SumTransactionsByCompany(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[string]int64)
	for _, tx := range m.entries {
		sums[tx.CompanyID] += tx.Credits
	}
	return sums, nil
}
