package session

import "context"

// Repository is the persistence contract for sessions and their appointments.
//
// Implementations must enforce workspace filtering on reads and serialize
// each individual mutation; multi-step flows (lookup, merge, write) are
// serialized above this layer by the reconciler.
type Repository interface {
	GetByID(ctx context.Context, id string) (Session, bool, error)
	GetByExternalCallID(ctx context.Context, externalCallID string) (Session, bool, error)
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Session, error)

	Create(ctx context.Context, s Session) error
	Update(ctx context.Context, s Session) error

	UpsertAppointment(ctx context.Context, a Appointment) error
	GetAppointmentBySession(ctx context.Context, sessionID string) (Appointment, bool, error)
	ListAppointmentsByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Appointment, error)
}
