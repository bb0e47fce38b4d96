package session

import "time"

// Session represents one phone/voice call handled by a workspace's agent.
//
// Invariants:
// - WorkspaceID is required on every row (tenancy isolation).
// - At most one Session per external call identifier.
// - Status transitions follow CanTransitionTo; a terminal webhook event is
//   authoritative and an ended session is never reopened.
type Session struct {
	ID            string `json:"id" db:"id"`
	WorkspaceID   string `json:"workspace_id" db:"workspace_id"`
	AgentConfigID string `json:"agent_config_id" db:"agent_config_id"`

	// ExternalCallID is the voice provider's conversation identifier.
	// Empty until first seen; set once and never changed after.
	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	CallerPhone string `json:"caller_phone,omitempty" db:"caller_phone"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	Status Status `json:"status" db:"status"`

	// ExtractedFields holds the lead fields produced by post-call extraction.
	ExtractedFields map[string]string `json:"extracted_fields,omitempty" db:"extracted_fields"`
	// MemoryFacts are free-form caller facts worth carrying into future calls.
	MemoryFacts []string `json:"memory_facts,omitempty" db:"memory_facts"`

	Summary string `json:"summary,omitempty" db:"summary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// CanTransitionTo is the session status transition table.
// Same-status transitions are allowed so redelivered terminal events stay
// idempotent; ended never goes back to active.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusActive || next == StatusEnded
	case StatusEnded:
		return next == StatusEnded
	default:
		return false
	}
}

// Appointment is the scheduling outcome derived from a session.
// At most one Appointment per Session.
type Appointment struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	SessionID   string `json:"session_id" db:"session_id"`

	Status AppointmentStatus `json:"status" db:"status"`

	Contact string `json:"contact,omitempty" db:"contact"`
	Address string `json:"address,omitempty" db:"address"`
	Reason  string `json:"reason,omitempty" db:"reason"`

	// ScheduledAtMillis is set only when the extracted schedule hint parsed
	// as a valid ISO-8601 timestamp.
	ScheduledAtMillis *int64 `json:"scheduled_at_ms,omitempty" db:"scheduled_at_ms"`
	// PreferredTime keeps the caller's free-text preference otherwise.
	PreferredTime string `json:"preferred_time,omitempty" db:"preferred_time"`

	Notes   string `json:"notes,omitempty" db:"notes"`
	Summary string `json:"summary,omitempty" db:"summary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AppointmentStatus string

const (
	AppointmentStatusScheduled     AppointmentStatus = "scheduled"
	AppointmentStatusNeedsFollowup AppointmentStatus = "needs_followup"
)

// CanTransitionTo is the appointment status transition table.
// A confirmed slot is never silently demoted back to followup.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentStatusNeedsFollowup:
		return next == AppointmentStatusNeedsFollowup || next == AppointmentStatusScheduled
	case AppointmentStatusScheduled:
		return next == AppointmentStatusScheduled
	default:
		return false
	}
}
