package agents

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists agent configurations.
//
// NOTE: This repository assumes an agent_configs table with a partial unique
// index on phone_number_resource_id (one binding per resource).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const agentColumns = `
id, workspace_id, name, external_agent_id, assigned_phone_number,
phone_number_resource_id, is_default, created_at, updated_at
`

func scanAgent(row interface{ Scan(dest ...any) error }) (AgentConfig, error) {
	var (
		a          AgentConfig
		externalID sql.NullString
		number     sql.NullString
		resourceID sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.WorkspaceID,
		&a.Name,
		&externalID,
		&number,
		&resourceID,
		&a.IsDefault,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return AgentConfig{}, err
	}
	a.ExternalAgentID = externalID.String
	a.AssignedPhoneNumber = number.String
	a.PhoneNumberResourceID = resourceID.String
	return a, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (AgentConfig, bool, error) {
	const q = `SELECT ` + agentColumns + ` FROM agent_configs WHERE id = $1`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return AgentConfig{}, false, nil
	}
	if err != nil {
		return AgentConfig{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) GetByExternalAgentID(ctx context.Context, externalAgentID string) (AgentConfig, bool, error) {
	if externalAgentID == "" {
		return AgentConfig{}, false, nil
	}
	const q = `SELECT ` + agentColumns + ` FROM agent_configs WHERE external_agent_id = $1`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, externalAgentID))
	if errors.Is(err, sql.ErrNoRows) {
		return AgentConfig{}, false, nil
	}
	if err != nil {
		return AgentConfig{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) GetByAssignedNumber(ctx context.Context, number string) (AgentConfig, bool, error) {
	if number == "" {
		return AgentConfig{}, false, nil
	}
	const q = `SELECT ` + agentColumns + ` FROM agent_configs WHERE assigned_phone_number = $1`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, number))
	if errors.Is(err, sql.ErrNoRows) {
		return AgentConfig{}, false, nil
	}
	if err != nil {
		return AgentConfig{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]AgentConfig, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	const q = `SELECT ` + agentColumns + `
FROM agent_configs WHERE workspace_id = $1
ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AgentConfig, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Create(ctx context.Context, a AgentConfig) error {
	const q = `
INSERT INTO agent_configs (` + agentColumns + `)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.WorkspaceID, a.Name, a.ExternalAgentID, a.AssignedPhoneNumber,
		a.PhoneNumberResourceID, a.IsDefault, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, a AgentConfig) error {
	const q = `
UPDATE agent_configs SET
	name = $2,
	external_agent_id = NULLIF($3, ''),
	assigned_phone_number = NULLIF($4, ''),
	phone_number_resource_id = NULLIF($5, ''),
	is_default = $6,
	updated_at = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		a.ID, a.Name, a.ExternalAgentID, a.AssignedPhoneNumber,
		a.PhoneNumberResourceID, a.IsDefault, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("agents: not found")
	}
	return nil
}
