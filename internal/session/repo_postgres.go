package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pkondra/ring-receptionist/pkg/utils"
)

// PostgresRepo persists sessions and appointments.
//
// NOTE: This repository assumes the following tables exist:
// - sessions (UNIQUE (external_call_id) WHERE external_call_id <> '')
// - appointments (UNIQUE (session_id))
//
// extracted_fields and memory_facts are stored as JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const sessionColumns = `
id, workspace_id, agent_config_id, external_call_id, caller_phone,
started_at, ended_at, status, extracted_fields, memory_facts, summary,
created_at, updated_at
`

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var (
		s           Session
		endedAt     sql.NullTime
		fieldsJSON  []byte
		factsJSON   []byte
		callerPhone sql.NullString
		callID      sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.WorkspaceID,
		&s.AgentConfigID,
		&callID,
		&callerPhone,
		&s.StartedAt,
		&endedAt,
		&s.Status,
		&fieldsJSON,
		&factsJSON,
		&s.Summary,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return Session{}, err
	}
	s.ExternalCallID = callID.String
	s.CallerPhone = callerPhone.String
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &s.ExtractedFields); err != nil {
			return Session{}, err
		}
	}
	if len(factsJSON) > 0 {
		if err := json.Unmarshal(factsJSON, &s.MemoryFacts); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Session, bool, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) GetByExternalCallID(ctx context.Context, externalCallID string) (Session, bool, error) {
	if externalCallID == "" {
		return Session{}, false, nil
	}
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE external_call_id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, externalCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Session, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + sessionColumns + `
FROM sessions WHERE workspace_id = $1
ORDER BY started_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Create(ctx context.Context, s Session) error {
	fieldsJSON, factsJSON, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.WorkspaceID, s.AgentConfigID, s.ExternalCallID, s.CallerPhone,
		s.StartedAt, nullTime(s.EndedAt), s.Status, fieldsJSON, factsJSON, s.Summary,
		s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, s Session) error {
	fieldsJSON, factsJSON, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}
	const q = `
UPDATE sessions SET
	external_call_id = NULLIF($2, ''),
	caller_phone = NULLIF($3, ''),
	started_at = $4,
	ended_at = $5,
	status = $6,
	extracted_fields = $7,
	memory_facts = $8,
	summary = $9,
	updated_at = $10
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		s.ID, s.ExternalCallID, s.CallerPhone, s.StartedAt, nullTime(s.EndedAt),
		s.Status, fieldsJSON, factsJSON, s.Summary, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("session: not found")
	}
	return nil
}

// UpsertAppointment writes the appointment and bumps the owning session's
// updated_at in one transaction, so list views sort redelivered calls last.
func (r *PostgresRepo) UpsertAppointment(ctx context.Context, a Appointment) error {
	const q = `
INSERT INTO appointments (
	id, workspace_id, session_id, status, contact, address, reason,
	scheduled_at_ms, preferred_time, notes, summary, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (session_id) DO UPDATE SET
	status = EXCLUDED.status,
	contact = EXCLUDED.contact,
	address = EXCLUDED.address,
	reason = EXCLUDED.reason,
	scheduled_at_ms = EXCLUDED.scheduled_at_ms,
	preferred_time = EXCLUDED.preferred_time,
	notes = EXCLUDED.notes,
	summary = EXCLUDED.summary,
	updated_at = EXCLUDED.updated_at
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, q,
			a.ID, a.WorkspaceID, a.SessionID, a.Status, a.Contact, a.Address, a.Reason,
			nullInt64(a.ScheduledAtMillis), a.PreferredTime, a.Notes, a.Summary,
			a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = $2 WHERE id = $1`, a.SessionID, a.UpdatedAt)
		return err
	})
}

const appointmentColumns = `
id, workspace_id, session_id, status, contact, address, reason,
scheduled_at_ms, preferred_time, notes, summary, created_at, updated_at
`

func scanAppointment(row interface{ Scan(dest ...any) error }) (Appointment, error) {
	var (
		a           Appointment
		scheduledAt sql.NullInt64
	)
	if err := row.Scan(
		&a.ID,
		&a.WorkspaceID,
		&a.SessionID,
		&a.Status,
		&a.Contact,
		&a.Address,
		&a.Reason,
		&scheduledAt,
		&a.PreferredTime,
		&a.Notes,
		&a.Summary,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Appointment{}, err
	}
	if scheduledAt.Valid {
		v := scheduledAt.Int64
		a.ScheduledAtMillis = &v
	}
	return a, nil
}

func (r *PostgresRepo) GetAppointmentBySession(ctx context.Context, sessionID string) (Appointment, bool, error) {
	const q = `SELECT ` + appointmentColumns + ` FROM appointments WHERE session_id = $1`
	a, err := scanAppointment(r.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, false, nil
	}
	if err != nil {
		return Appointment{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) ListAppointmentsByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Appointment, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + appointmentColumns + `
FROM appointments WHERE workspace_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalSessionJSON(s Session) ([]byte, []byte, error) {
	fields := s.ExtractedFields
	if fields == nil {
		fields = map[string]string{}
	}
	facts := s.MemoryFacts
	if facts == nil {
		facts = []string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return nil, nil, err
	}
	return fieldsJSON, factsJSON, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
