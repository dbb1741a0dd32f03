// Package ledger tracks per-company resume-view credits.
//
// Flow:
//  1. A company admin buys a plan; the payment verifier settles the order
//     and credits the account (purchase).
//  2. HR users spend credits viewing cross-company resumes (usage).
//  3. Admin-initiated refunds return credits (refund).
//
// The account row is the single mutation point. The transaction log is
// append-only and must replay to the stored balance at all times.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/metrics"
)

var (
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
)

// Type classifies a ledger transaction.
type Type string

const (
	TypePurchase Type = "purchase"
	TypeUsage    Type = "usage"
	TypeRefund   Type = "refund"
)

// Account is a company's credit balance.
// Invariant: RemainingCredits = TotalCredits - UsedCredits, all non-negative.
type Account struct {
	CompanyID        string    `json:"company_id"`
	TotalCredits     int64     `json:"total_credits"`
	UsedCredits      int64     `json:"used_credits"`
	RemainingCredits int64     `json:"remaining_credits"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Transaction is one append-only ledger entry. Credits is signed: positive
// for purchase and refund, negative for usage.
type Transaction struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	Type             Type      `json:"transaction_type"`
	Credits          int64     `json:"credits"`
	Description      string    `json:"description"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	HRUser           string    `json:"hr_user,omitempty"`
	ResumeID         string    `json:"resume_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageRef carries the context recorded with a usage debit.
type UsageRef struct {
	HRUser      string
	ResumeID    string
	Description string
}

// CreditRef carries the context recorded with a purchase or refund.
type CreditRef struct {
	PaymentReference string
	Description      string
}

// Store persists accounts and their transaction log.
//
// Debit and Credit must be atomic: balance mutation and log append happen
// together or not at all, and concurrent debits against one company must
// serialize so the balance never goes negative.
type Store interface {
	GetAccount(ctx context.Context, companyID string) (*Account, error)
	ListTransactions(ctx context.Context, companyID string, limit int) ([]*Transaction, error)
	Debit(ctx context.Context, companyID string, credits int64, ref UsageRef) (*Account, *Transaction, error)
	Credit(ctx context.Context, companyID string, credits int64, txType Type, ref CreditRef) (*Account, *Transaction, error)

	// ListAccounts and SumTransactionsByCompany feed the reconciliation
	// runner; they are read-only.
	ListAccounts(ctx context.Context) ([]*Account, error)
	SumTransactionsByCompany(ctx context.Context) (map[string]int64, error)
}

// Notifier receives ledger change events (realtime stream, webhooks).
// Implementations must not block.
type Notifier interface {
	AccountChanged(account *Account, tx *Transaction)
}

// MultiNotifier fans a change event out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) AccountChanged(account *Account, tx *Transaction) {
	for _, n := range m {
		n.AccountChanged(account, tx)
	}
}

// Ledger manages company credit balances.
type Ledger struct {
	store    Store
	notifier Notifier // optional
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// SetNotifier attaches a change notifier. Call before serving traffic.
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// GetBalance returns a company's current account. Companies with no history
// get a zero account.
func (l *Ledger) GetBalance(ctx context.Context, companyID string) (*Account, error) {
	return l.store.GetAccount(ctx, companyID)
}

// ListTransactions returns a company's ledger entries, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, companyID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListTransactions(ctx, companyID, limit)
}

// Debit consumes credits for a resume view. Fails with
// ErrInsufficientCredits when the remaining balance is below the amount;
// the balance is left untouched in that case.
func (l *Ledger) Debit(ctx context.Context, companyID string, credits int64, ref UsageRef) (*Account, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	account, tx, err := l.store.Debit(ctx, companyID, credits, ref)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			metrics.InsufficientCreditsTotal.Inc()
		}
		return nil, err
	}

	metrics.CreditsDebitedTotal.Add(float64(credits))
	l.notify(account, tx)
	return account, nil
}

// Credit grants purchase credits directly, outside order settlement
// (seeding, tests). Settled orders are committed by a payment settler
// writing through Store, with purchase metrics accounted for by the
// verifier; routing a settlement through here would count it twice.
func (l *Ledger) Credit(ctx context.Context, companyID string, credits int64, ref CreditRef) (*Account, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	account, tx, err := l.store.Credit(ctx, companyID, credits, TypePurchase, ref)
	if err != nil {
		return nil, err
	}

	metrics.CreditsPurchasedTotal.Add(float64(credits))
	l.notify(account, tx)
	return account, nil
}

// Refund returns credits to an account (admin flows, failed reveals after a
// debit).
func (l *Ledger) Refund(ctx context.Context, companyID string, credits int64, ref CreditRef) (*Account, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	account, tx, err := l.store.Credit(ctx, companyID, credits, TypeRefund, ref)
	if err != nil {
		return nil, err
	}

	metrics.CreditsRefundedTotal.Add(float64(credits))
	l.notify(account, tx)
	return account, nil
}

// CanSpend reports whether a company has at least the given credits left.
func (l *Ledger) CanSpend(ctx context.Context, companyID string, credits int64) (bool, error) {
	account, err := l.store.GetAccount(ctx, companyID)
	if err != nil {
		return false, err
	}
	return account.RemainingCredits >= credits, nil
}

func (l *Ledger) notify(account *Account, tx *Transaction) {
	if l.notifier == nil {
		return
	}
	l.notifier.AccountChanged(account, tx)
}

func newTransactionID() string {
	return idgen.WithPrefix("txn_")
}
