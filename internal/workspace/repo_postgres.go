package workspace

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists workspaces.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const workspaceColumns = `
id, name, stripe_customer_id, subscription_status, plan, created_at, updated_at
`

func scanWorkspace(row interface{ Scan(dest ...any) error }) (Workspace, error) {
	var (
		w          Workspace
		customerID sql.NullString
		status     sql.NullString
		plan       sql.NullString
	)
	if err := row.Scan(
		&w.ID,
		&w.Name,
		&customerID,
		&status,
		&plan,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		return Workspace{}, err
	}
	w.StripeCustomerID = customerID.String
	w.SubscriptionStatus = status.String
	w.Plan = plan.String
	return w, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Workspace, bool, error) {
	const q = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	w, err := scanWorkspace(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Workspace{}, false, nil
	}
	if err != nil {
		return Workspace{}, false, err
	}
	return w, true, nil
}

func (r *PostgresRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (Workspace, bool, error) {
	if customerID == "" {
		return Workspace{}, false, nil
	}
	const q = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE stripe_customer_id = $1`
	w, err := scanWorkspace(r.db.QueryRowContext(ctx, q, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Workspace{}, false, nil
	}
	if err != nil {
		return Workspace{}, false, err
	}
	return w, true, nil
}

func (r *PostgresRepo) Create(ctx context.Context, w Workspace) error {
	const q = `
INSERT INTO workspaces (` + workspaceColumns + `)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)
`
	_, err := r.db.ExecContext(ctx, q,
		w.ID, w.Name, w.StripeCustomerID, w.SubscriptionStatus, w.Plan,
		w.CreatedAt, w.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, w Workspace) error {
	const q = `
UPDATE workspaces SET
	name = $2,
	stripe_customer_id = NULLIF($3, ''),
	subscription_status = NULLIF($4, ''),
	plan = NULLIF($5, ''),
	updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		w.ID, w.Name, w.StripeCustomerID, w.SubscriptionStatus, w.Plan, w.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("workspace: not found")
	}
	return nil
}
