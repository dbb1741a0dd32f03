package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, plan_id, buyer_email, company_id, amount, currency, credits, status,
	payment_ref, gateway_order_id, COALESCE(gateway_payment_id, ''), COALESCE(failure_reason, ''),
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PlanID, &o.BuyerEmail, &o.CompanyID, &o.Amount, &o.Currency,
		&o.Credits, &o.Status, &o.PaymentRef, &o.GatewayOrderID, &o.GatewayPaymentID,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *PostgresStore) Create(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, plan_id, buyer_email, company_id, amount, currency, credits,
			status, payment_ref, gateway_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, o.ID, o.PlanID, o.BuyerEmail, o.CompanyID, o.Amount, o.Currency, o.Credits,
		o.Status, o.PaymentRef, o.GatewayOrderID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (p *PostgresStore) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_ref = $1`, ref))
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by payment ref: %w", err)
	}
	return o, nil
}

func (p *PostgresStore) ListByCompany(ctx context.Context, companyID string) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE company_id = $1 ORDER BY created_at DESC, id DESC`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (p *PostgresStore) MarkVerified(ctx context.Context, id, gatewayPaymentID string) error {
	return p.transition(ctx, id, `
		UPDATE orders SET status = 'verified', gateway_payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, gatewayPaymentID)
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	return p.transition(ctx, id, `
		UPDATE orders SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, reason)
}

// transition runs a guarded pending-only status update and distinguishes
// missing orders from terminal ones.
func (p *PostgresStore) transition(ctx context.Context, id, query, arg string) error {
	res, err := p.db.ExecContext(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check order: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrOrderNotPending
	}
	return nil
}

func (p *PostgresStore) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE orders SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
	`, before, ReasonCheckoutExpired)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale orders: %w", err)
	}
	return res.RowsAffected()
}
