package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/order"
)

// PostgresSettler settles orders in a single database transaction spanning
// the orders, credit_accounts, and credit_transactions tables. The guarded
// UPDATE on the order row is the exactly-once gate: whichever callback
// commits the pending -> verified transition also commits the credit grant;
// every other callback sees zero rows and backs off.
type PostgresSettler struct {
	db *sql.DB
}

// NewPostgresSettler creates a settler over the shared database handle.
func NewPostgresSettler(db *sql.DB) *PostgresSettler {
	return &PostgresSettler{db: db}
}

func (s *PostgresSettler) Settle(ctx context.Context, o *order.Order, gatewayPaymentID, description string) (*ledger.Account, *ledger.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'verified', gateway_payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, o.ID, gatewayPaymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		var status order.Status
		if err := s.db.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1`, o.ID).Scan(&status); err != nil {
			return nil, nil, fmt.Errorf("failed to check order status: %w", err)
		}
		if status == order.StatusVerified {
			return nil, nil, ErrAlreadySettled
		}
		return nil, nil, order.ErrOrderNotPending
	}

	account := &ledger.Account{CompanyID: o.CompanyID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO credit_accounts (company_id, total_credits, used_credits, remaining_credits, updated_at)
		VALUES ($1, $2, 0, $2, NOW())
		ON CONFLICT (company_id) DO UPDATE SET
			total_credits     = credit_accounts.total_credits + $2,
			remaining_credits = credit_accounts.remaining_credits + $2,
			updated_at        = NOW()
		RETURNING total_credits, used_credits, remaining_credits, updated_at
	`, o.CompanyID, o.Credits).Scan(&account.TotalCredits, &account.UsedCredits,
		&account.RemainingCredits, &account.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to credit account: %w", err)
	}

	entry := &ledger.Transaction{
		ID:               idgen.WithPrefix("txn_"),
		CompanyID:        o.CompanyID,
		Type:             ledger.TypePurchase,
		Credits:          o.Credits,
		Description:      description,
		PaymentReference: o.PaymentRef,
		CreatedAt:        account.UpdatedAt,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, company_id, type, credits, description, payment_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.CompanyID, entry.Type, entry.Credits, entry.Description,
		entry.PaymentReference, entry.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record purchase entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return account, entry, nil
}
