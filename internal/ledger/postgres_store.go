package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
//
// Debits are a single guarded UPDATE: the WHERE clause checks the remaining
// balance, and the CHECK constraints on credit_accounts are the backstop, so
// two racing debits can never drive a balance negative.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetAccount(ctx context.Context, companyID string) (*Account, error) {
	acc := &Account{CompanyID: companyID}

	err := p.db.QueryRowContext(ctx, `
		SELECT total_credits, used_credits, remaining_credits, updated_at
		FROM credit_accounts WHERE company_id = $1
	`, companyID).Scan(&acc.TotalCredits, &acc.UsedCredits, &acc.RemainingCredits, &acc.UpdatedAt)

	if err == sql.ErrNoRows {
		// Companies with no purchase history have a zero account.
		return &Account{CompanyID: companyID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (p *PostgresStore) ListTransactions(ctx context.Context, companyID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, company_id, type, credits, description,
		       COALESCE(payment_reference, ''), COALESCE(hr_user, ''), COALESCE(resume_id, ''),
		       created_at
		FROM credit_transactions
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.CompanyID, &tx.Type, &tx.Credits, &tx.Description,
			&tx.PaymentReference, &tx.HRUser, &tx.ResumeID, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

func (p *PostgresStore) Debit(ctx context.Context, companyID string, credits int64, ref UsageRef) (*Account, *Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	// Check and decrement in one statement. Zero rows means either no
	// account or not enough credits; both deny the debit.
	acc := &Account{CompanyID: companyID}
	err = tx.QueryRowContext(ctx, `
		UPDATE credit_accounts SET
			used_credits      = used_credits + $2,
			remaining_credits = remaining_credits - $2,
			updated_at        = NOW()
		WHERE company_id = $1 AND remaining_credits >= $2
		RETURNING total_credits, used_credits, remaining_credits, updated_at
	`, companyID, credits).Scan(&acc.TotalCredits, &acc.UsedCredits, &acc.RemainingCredits, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit account: %w", err)
	}

	entry := &Transaction{
		ID:          newTransactionID(),
		CompanyID:   companyID,
		Type:        TypeUsage,
		Credits:     -credits,
		Description: ref.Description,
		HRUser:      ref.HRUser,
		ResumeID:    ref.ResumeID,
		CreatedAt:   acc.UpdatedAt,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, company_id, type, credits, description, hr_user, resume_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, entry.ID, entry.CompanyID, entry.Type, entry.Credits, entry.Description, entry.HRUser, entry.ResumeID, entry.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record usage entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return acc, entry, nil
}

func (p *PostgresStore) Credit(ctx context.Context, companyID string, credits int64, txType Type, ref CreditRef) (*Account, *Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	acc := &Account{CompanyID: companyID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO credit_accounts (company_id, total_credits, used_credits, remaining_credits, updated_at)
		VALUES ($1, $2, 0, $2, NOW())
		ON CONFLICT (company_id) DO UPDATE SET
			total_credits     = credit_accounts.total_credits + $2,
			remaining_credits = credit_accounts.remaining_credits + $2,
			updated_at        = NOW()
		RETURNING total_credits, used_credits, remaining_credits, updated_at
	`, companyID, credits).Scan(&acc.TotalCredits, &acc.UsedCredits, &acc.RemainingCredits, &acc.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to credit account: %w", err)
	}

	entry := &Transaction{
		ID:               newTransactionID(),
		CompanyID:        companyID,
		Type:             txType,
		Credits:          credits,
		Description:      ref.Description,
		PaymentReference: ref.PaymentReference,
		CreatedAt:        acc.UpdatedAt,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, company_id, type, credits, description, payment_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, entry.ID, entry.CompanyID, entry.Type, entry.Credits, entry.Description, entry.PaymentReference, entry.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record credit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return acc, entry, nil
}

func (p *PostgresStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT company_id, total_credits, used_credits, remaining_credits, updated_at
		FROM credit_accounts
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.CompanyID, &acc.TotalCredits, &acc.UsedCredits, &acc.RemainingCredits, &acc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

func (p *PostgresStore) SumTransactionsByCompany(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT company_id, COALESCE(SUM(credits), 0)
		FROM credit_transactions
		GROUP BY company_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var companyID string
		var sum int64
		if err := rows.Scan(&companyID, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan sum: %w", err)
		}
		sums[companyID] = sum
	}
	return sums, rows.Err()
}
