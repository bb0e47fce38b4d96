package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized      = errors.New("session: mutation secret mismatch")
	ErrAgentNotFound     = errors.New("session: agent not found for webhook")
	ErrNotFound          = errors.New("session: not found")
	ErrInvalidTransition = errors.New("session: invalid status transition")
)

// CallEvent is the normalized post-call event the reconciler consumes.
// The webhook package produces it; the reconciler never sees provider JSON.
type CallEvent struct {
	ExternalAgentID string
	ExternalCallID  string

	CallerPhone string
	CalledPhone string

	StartedAt time.Time
	// EndedAt is set when the event carries a terminal end time. A terminal
	// event is authoritative over any earlier partial event.
	EndedAt *time.Time
}

// FinalizeInput is the single authoritative terminal write for a call:
// whatever the extraction steps produced, folded into the session.
type FinalizeInput struct {
	Summary         string
	ExtractedFields map[string]string
	MemoryFacts     []string
}

// Service maps external call identifiers to internal sessions and owns all
// webhook-triggered session writes.
//
// Every mutating entry point takes the internal mutation shared secret and
// rejects on mismatch before touching storage. This is defense in depth
// against a compromised internal API surface, independent of the HTTP-layer
// webhook signature.
type Service struct {
	repo           Repository
	agents         agents.Repository
	mutationSecret string
	clock          func() time.Time
}

func NewService(repo Repository, agentRepo agents.Repository, mutationSecret string) *Service {
	return &Service{
		repo:           repo,
		agents:         agentRepo,
		mutationSecret: mutationSecret,
		clock:          time.Now,
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) authorize(secret string) error {
	if s.mutationSecret == "" {
		return errors.New("session: mutation secret not configured")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.mutationSecret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Reconcile maps (external agent id, external call id) to a session,
// creating or patching it. Safe to run twice with an identical payload:
// the second invocation is a no-op diff against current state.
func (s *Service) Reconcile(ctx context.Context, secret string, ev CallEvent) (Session, error) {
	if err := s.authorize(secret); err != nil {
		return Session{}, err
	}
	if ev.ExternalCallID == "" {
		return Session{}, errors.New("session: external call id required")
	}

	existing, ok, err := s.repo.GetByExternalCallID(ctx, ev.ExternalCallID)
	if err != nil {
		return Session{}, err
	}
	if ok {
		return s.patchExisting(ctx, existing, ev)
	}

	agent, err := s.resolveAgent(ctx, ev)
	if err != nil {
		return Session{}, err
	}

	now := s.clock().UTC()
	sess := Session{
		ID:             uuid.NewString(),
		WorkspaceID:    agent.WorkspaceID,
		AgentConfigID:  agent.ID,
		ExternalCallID: ev.ExternalCallID,
		CallerPhone:    ev.CallerPhone,
		StartedAt:      ev.StartedAt,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	if ev.EndedAt != nil {
		t := ev.EndedAt.UTC()
		sess.EndedAt = &t
		sess.Status = StatusEnded
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		// A concurrent delivery may have created the row between our lookup
		// and insert; fall back to patching it.
		if again, ok, lookupErr := s.repo.GetByExternalCallID(ctx, ev.ExternalCallID); lookupErr == nil && ok {
			return s.patchExisting(ctx, again, ev)
		}
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) patchExisting(ctx context.Context, sess Session, ev CallEvent) (Session, error) {
	changed := false

	// Caller phone is patched only if previously unset.
	if sess.CallerPhone == "" && ev.CallerPhone != "" {
		sess.CallerPhone = ev.CallerPhone
		changed = true
	}

	// An end time present in the event always wins: the webhook's terminal
	// call is authoritative over any earlier partial event.
	if ev.EndedAt != nil {
		if !sess.Status.CanTransitionTo(StatusEnded) {
			return Session{}, ErrInvalidTransition
		}
		t := ev.EndedAt.UTC()
		if sess.EndedAt == nil || !sess.EndedAt.Equal(t) {
			sess.EndedAt = &t
			changed = true
		}
		if sess.Status != StatusEnded {
			sess.Status = StatusEnded
			changed = true
		}
	}

	if !changed {
		return sess, nil
	}
	sess.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) resolveAgent(ctx context.Context, ev CallEvent) (agents.AgentConfig, error) {
	if ev.ExternalAgentID != "" {
		if a, ok, err := s.agents.GetByExternalAgentID(ctx, ev.ExternalAgentID); err != nil {
			return agents.AgentConfig{}, err
		} else if ok {
			return a, nil
		}
	}
	// Numbers not yet linked to an agent record resolve by the dialed number.
	if ev.CalledPhone != "" {
		if a, ok, err := s.agents.GetByAssignedNumber(ctx, ev.CalledPhone); err != nil {
			return agents.AgentConfig{}, err
		} else if ok {
			return a, nil
		}
	}
	return agents.AgentConfig{}, ErrAgentNotFound
}

// Finalize marks the session ended and folds in whatever the extraction
// steps produced. It is the terminal write for the call; redelivery makes it
// run again with identical inputs, which converges to the same row.
func (s *Service) Finalize(ctx context.Context, secret, sessionID string, in FinalizeInput) (Session, error) {
	if err := s.authorize(secret); err != nil {
		return Session{}, err
	}
	sess, ok, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNotFound
	}
	if !sess.Status.CanTransitionTo(StatusEnded) {
		return Session{}, ErrInvalidTransition
	}

	now := s.clock().UTC()
	sess.Status = StatusEnded
	if sess.EndedAt == nil {
		sess.EndedAt = &now
	}
	if in.Summary != "" {
		sess.Summary = in.Summary
	}
	if len(in.ExtractedFields) > 0 {
		if sess.ExtractedFields == nil {
			sess.ExtractedFields = map[string]string{}
		}
		for k, v := range in.ExtractedFields {
			if v != "" {
				sess.ExtractedFields[k] = v
			}
		}
	}
	if len(in.MemoryFacts) > 0 {
		sess.MemoryFacts = appendNewFacts(sess.MemoryFacts, in.MemoryFacts)
	}
	sess.UpdatedAt = now

	if err := s.repo.Update(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SaveAppointment creates or patches the session's appointment, honoring the
// appointment transition table (a scheduled slot is never demoted).
func (s *Service) SaveAppointment(ctx context.Context, secret string, a Appointment) (Appointment, error) {
	if err := s.authorize(secret); err != nil {
		return Appointment{}, err
	}
	if a.SessionID == "" || a.WorkspaceID == "" {
		return Appointment{}, errors.New("session: appointment requires session_id and workspace_id")
	}

	now := s.clock().UTC()
	existing, ok, err := s.repo.GetAppointmentBySession(ctx, a.SessionID)
	if err != nil {
		return Appointment{}, err
	}
	if ok {
		if !existing.Status.CanTransitionTo(a.Status) {
			return Appointment{}, ErrInvalidTransition
		}
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	if err := s.repo.UpsertAppointment(ctx, a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// EndCall is the explicit end-of-call action used by the live voice client.
func (s *Service) EndCall(ctx context.Context, secret, sessionID string) (Session, error) {
	return s.Finalize(ctx, secret, sessionID, FinalizeInput{})
}

func appendNewFacts(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f] = struct{}{}
	}
	out := existing
	for _, f := range incoming {
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
