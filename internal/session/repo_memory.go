package session

import (
	"context"
	"errors"
	"sync"
)

// MemoryRepo is an in-memory session repository for tests and early development.
// It enforces the one-session-per-external-call-id invariant the same way the
// Postgres unique index does.
type MemoryRepo struct {
	mu           sync.Mutex
	sessions     map[string]Session     // by id
	byCallID     map[string]string      // external call id -> session id
	appointments map[string]Appointment // by session id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sessions:     map[string]Session{},
		byCallID:     map[string]string{},
		appointments: map[string]Appointment{},
	}
}

var errDuplicateCallID = errors.New("session: external call id already exists")

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok, nil
}

func (r *MemoryRepo) GetByExternalCallID(ctx context.Context, externalCallID string) (Session, bool, error) {
	if externalCallID == "" {
		return Session{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCallID[externalCallID]
	if !ok {
		return Session{}, false, nil
	}
	s, ok := r.sessions[id]
	return s, ok, nil
}

func (r *MemoryRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Session, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0)
	for _, s := range r.sessions {
		if s.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) Create(ctx context.Context, s Session) error {
	if s.ID == "" || s.WorkspaceID == "" {
		return errors.New("session: id and workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ExternalCallID != "" {
		if _, exists := r.byCallID[s.ExternalCallID]; exists {
			return errDuplicateCallID
		}
		r.byCallID[s.ExternalCallID] = s.ID
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[s.ID]
	if !ok {
		return errors.New("session: not found")
	}
	if prev.ExternalCallID == "" && s.ExternalCallID != "" {
		if existing, exists := r.byCallID[s.ExternalCallID]; exists && existing != s.ID {
			return errDuplicateCallID
		}
		r.byCallID[s.ExternalCallID] = s.ID
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) UpsertAppointment(ctx context.Context, a Appointment) error {
	if a.SessionID == "" || a.WorkspaceID == "" {
		return errors.New("appointment: session_id and workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.SessionID] = a
	return nil
}

func (r *MemoryRepo) GetAppointmentBySession(ctx context.Context, sessionID string) (Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[sessionID]
	return a, ok, nil
}

func (r *MemoryRepo) ListAppointmentsByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Appointment, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0)
	for _, a := range r.appointments {
		if a.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
