package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events in the audit_events table.
// Insert-only by construction; the table should additionally forbid
// UPDATE/DELETE at the database level.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, workspace_id, type,
			actor_user_id, actor_role, ip_address,
			agent_config_id, phone_number_id, session_id, stripe_event_id,
			message, metadata, created_at
		) VALUES (
			$1, $2, $3,
			NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, NULLIF($12, ''), $13
		)`,
		e.ID, e.WorkspaceID, string(e.Type),
		e.ActorUserID, e.ActorRole, e.IPAddress,
		e.AgentConfigID, e.PhoneNumberID, e.SessionID, e.StripeEventID,
		e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
