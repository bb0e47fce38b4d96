package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces workspace isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Sessions     []session.Session
	Appointments []session.Appointment
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListSessions(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Session, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Session, 0)
	for _, s := range r.Sessions {
		if s.WorkspaceID != workspaceID {
			continue
		}
		if !inRange(s.CreatedAt, from, to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *MemoryRepo) ListAppointments(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Appointment, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Appointment, 0)
	for _, a := range r.Appointments {
		if a.WorkspaceID != workspaceID {
			continue
		}
		if !inRange(a.CreatedAt, from, to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !t.Before(from) && t.Before(to)
}
