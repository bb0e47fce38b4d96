package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce workspace filtering.
// - Reads go against the session store; reporting never writes.

type Repository interface {
	ListSessions(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Session, error)
	ListAppointments(ctx context.Context, workspaceID string, from, to time.Time) ([]session.Appointment, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.WorkspaceID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{WorkspaceID: req.WorkspaceID}
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case session.StatusActive:
			out.ActiveCalls++
		case session.StatusEnded:
			out.EndedCalls++
		}
		if c.EndedAt != nil && !c.StartedAt.IsZero() && c.EndedAt.After(c.StartedAt) {
			out.TotalDurationSeconds += int(c.EndedAt.Sub(c.StartedAt) / time.Second)
		}
		if len(c.ExtractedFields) > 0 {
			out.LeadsCaptured++
		}
		if c.Summary != "" {
			out.SummarizedCalls++
		}
	}
	if out.EndedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.EndedCalls
	}

	appts, err := s.repo.ListAppointments(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}
	for _, a := range appts {
		out.Appointments++
		switch a.Status {
		case session.AppointmentStatusScheduled:
			out.AppointmentsScheduled++
		case session.AppointmentStatusNeedsFollowup:
			out.AppointmentsNeedFollowup++
		}
	}
	return out, nil
}
