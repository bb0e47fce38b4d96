package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
)

func TestReporting_WorkspaceIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	ended := now.Add(90 * time.Second)
	repo.Sessions = []session.Session{
		{ID: "s1", WorkspaceID: "w1", Status: session.StatusEnded, StartedAt: now, EndedAt: &ended, CreatedAt: now},
		{ID: "s2", WorkspaceID: "w2", Status: session.StatusEnded, StartedAt: now, EndedAt: &ended, CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{WorkspaceID: "w1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 90 {
		t.Fatalf("duration aggregate wrong: %+v", out)
	}
}

func TestReporting_CountsLeadsSummariesAndAppointments(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	ended := now.Add(time.Minute)
	repo.Sessions = []session.Session{
		{ID: "s1", WorkspaceID: "w", Status: session.StatusEnded, StartedAt: now, EndedAt: &ended, Summary: "quote call", ExtractedFields: map[string]string{"name": "Pat"}, CreatedAt: now},
		{ID: "s2", WorkspaceID: "w", Status: session.StatusActive, StartedAt: now, CreatedAt: now},
	}
	repo.Appointments = []session.Appointment{
		{ID: "a1", WorkspaceID: "w", SessionID: "s1", Status: session.AppointmentStatusScheduled, CreatedAt: now},
		{ID: "a2", WorkspaceID: "w", SessionID: "s2", Status: session.AppointmentStatusNeedsFollowup, CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{WorkspaceID: "w", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.ActiveCalls != 1 || out.EndedCalls != 1 {
		t.Fatalf("status split wrong: %+v", out)
	}
	if out.LeadsCaptured != 1 || out.SummarizedCalls != 1 {
		t.Fatalf("extraction counts wrong: %+v", out)
	}
	if out.Appointments != 2 || out.AppointmentsScheduled != 1 || out.AppointmentsNeedFollowup != 1 {
		t.Fatalf("appointment counts wrong: %+v", out)
	}
}

func TestReporting_RejectsInvalidRequests(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	cases := []CallsSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{WorkspaceID: "w"},
		{WorkspaceID: "w", Range: TimeRange{From: now.Add(time.Hour), To: now}},
	}
	for i, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
