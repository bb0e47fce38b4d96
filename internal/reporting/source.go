package reporting

import (
	"context"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
)

// SessionSource adapts the session store to the reporting Repository.
// Range filtering happens here; the session store only scopes by workspace.
type SessionSource struct {
	sessions session.Repository
}

func NewSessionSource(repo session.Repository) *SessionSource {
	return &SessionSource{sessions: repo}
}

func (s *SessionSource) ListSessions(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Session, error) {
	rows, err := s.sessions.ListByWorkspace(ctx, workspaceID, 0)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if inRange(row.CreatedAt, from, to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *SessionSource) ListAppointments(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Appointment, error) {
	rows, err := s.sessions.ListAppointmentsByWorkspace(ctx, workspaceID, 0)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if inRange(row.CreatedAt, from, to) {
			out = append(out, row)
		}
	}
	return out, nil
}
