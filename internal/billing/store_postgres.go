package billing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PostgresEventStore persists billing events in billing_events with a unique
// index on stripe_event_id. ON CONFLICT DO NOTHING makes Record idempotent
// under concurrent redelivery.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) Record(ctx context.Context, e Event) (bool, error) {
	if e.StripeEventID == "" {
		return false, errors.New("billing: stripe event id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_events (id, stripe_event_id, type, workspace_id, payload, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NOW())
		ON CONFLICT (stripe_event_id) DO NOTHING`,
		e.ID, e.StripeEventID, e.Type, e.WorkspaceID, e.Payload,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
