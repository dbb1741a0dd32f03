package plan

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed plan store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const planColumns = `id, name, price, credits, description, is_active, created_at, updated_at`

func (p *PostgresStore) List(ctx context.Context) ([]*Plan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM plans ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]*Plan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Plan, error) {
	var pl Plan
	err := p.db.QueryRowContext(ctx, `
		SELECT `+planColumns+` FROM plans WHERE id = $1
	`, id).Scan(&pl.ID, &pl.Name, &pl.Price, &pl.Credits, &pl.Description, &pl.IsActive, &pl.CreatedAt, &pl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &pl, nil
}

func (p *PostgresStore) Create(ctx context.Context, pl *Plan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, price, credits, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, pl.ID, pl.Name, pl.Price, pl.Credits, pl.Description, pl.IsActive, pl.CreatedAt, pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, pl *Plan) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE plans SET
			name        = $2,
			price       = $3,
			credits     = $4,
			description = $5,
			is_active   = $6,
			updated_at  = $7
		WHERE id = $1
	`, pl.ID, pl.Name, pl.Price, pl.Credits, pl.Description, pl.IsActive, pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (p *PostgresStore) Deactivate(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE plans SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate plan: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func scanPlans(rows *sql.Rows) ([]*Plan, error) {
	var plans []*Plan
	for rows.Next() {
		var pl Plan
		if err := rows.Scan(&pl.ID, &pl.Name, &pl.Price, &pl.Credits, &pl.Description, &pl.IsActive, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &pl)
	}
	return plans, rows.Err()
}
