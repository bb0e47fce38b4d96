package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
)

const testSecret = "mut-secret"

func newTestService(t *testing.T) (*Service, *MemoryRepo, *agents.MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	agentRepo := agents.NewMemoryRepo()
	if err := agentRepo.Create(context.Background(), agents.AgentConfig{
		ID:                  "ac_1",
		WorkspaceID:         "w1",
		Name:                "Front Desk",
		ExternalAgentID:     "ag_1",
		AssignedPhoneNumber: "+15550001111",
	}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	svc := NewService(repo, agentRepo, testSecret).WithClock(func() time.Time {
		return time.Unix(1700000000, 0).UTC()
	})
	return svc, repo, agentRepo
}

func TestReconcile_RejectsBadMutationSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Reconcile(context.Background(), "wrong", CallEvent{ExternalCallID: "call_1", ExternalAgentID: "ag_1"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestReconcile_CreatesSessionForKnownAgent(t *testing.T) {
	svc, _, _ := newTestService(t)
	started := time.Unix(1699999000, 0).UTC()

	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
		CallerPhone:     "+15559998888",
		StartedAt:       started,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sess.WorkspaceID != "w1" || sess.AgentConfigID != "ac_1" {
		t.Fatalf("session not attributed to agent: %+v", sess)
	}
	if sess.Status != StatusActive {
		t.Fatalf("expected active without end time, got %s", sess.Status)
	}
	if !sess.StartedAt.Equal(started) {
		t.Fatalf("expected event start time, got %v", sess.StartedAt)
	}
}

func TestReconcile_FallsBackToCalledNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_unknown",
		ExternalCallID:  "call_7",
		CalledPhone:     "+15550001111",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sess.AgentConfigID != "ac_1" {
		t.Fatalf("expected number fallback to resolve ac_1, got %q", sess.AgentConfigID)
	}
}

func TestReconcile_UnattributableEventFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_unknown",
		ExternalCallID:  "call_8",
		CalledPhone:     "+15550009999",
	})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestReconcile_DoubleDeliveryIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ended := time.Unix(1699999600, 0).UTC()
	ev := CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
		CallerPhone:     "+15559998888",
		StartedAt:       time.Unix(1699999000, 0).UTC(),
		EndedAt:         &ended,
	}

	first, err := svc.Reconcile(context.Background(), testSecret, ev)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), testSecret, ev)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("redelivery created a second session: %q vs %q", first.ID, second.ID)
	}

	count := 0
	sessions, err := repo.ListByWorkspace(context.Background(), "w1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, s := range sessions {
		if s.ExternalCallID == "call_42" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one session per call id, got %d", count)
	}
	if second.Status != StatusEnded {
		t.Fatalf("redelivered terminal event must keep session ended, got %s", second.Status)
	}
}

func TestReconcile_TerminalEventWinsOverPartial(t *testing.T) {
	svc, _, _ := newTestService(t)

	// First delivery: partial event, no end time.
	if _, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
	}); err != nil {
		t.Fatalf("partial delivery: %v", err)
	}

	ended := time.Unix(1699999600, 0).UTC()
	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
		EndedAt:         &ended,
	})
	if err != nil {
		t.Fatalf("terminal delivery: %v", err)
	}
	if sess.Status != StatusEnded || sess.EndedAt == nil || !sess.EndedAt.Equal(ended) {
		t.Fatalf("terminal event must end the session: %+v", sess)
	}

	// Partial redelivery after the terminal event must not un-end it.
	sess, err = svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
	})
	if err != nil {
		t.Fatalf("late partial redelivery: %v", err)
	}
	if sess.Status != StatusEnded {
		t.Fatalf("late partial event un-ended the session")
	}
}

func TestReconcile_CallerPhonePatchedOnlyIfUnset(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_9",
		CallerPhone:     "+15551230000",
	}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_9",
		CallerPhone:     "+15557770000",
	})
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if sess.CallerPhone != "+15551230000" {
		t.Fatalf("caller phone overwritten: %q", sess.CallerPhone)
	}
}

func TestFinalize_FoldsExtractionResults(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_10",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	out, err := svc.Finalize(context.Background(), testSecret, sess.ID, FinalizeInput{
		Summary:         "Caller asked about pricing.",
		ExtractedFields: map[string]string{"name": "Pat", "email": ""},
		MemoryFacts:     []string{"prefers morning calls", "prefers morning calls"},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if out.Status != StatusEnded || out.EndedAt == nil {
		t.Fatalf("finalize must end the session: %+v", out)
	}
	if out.Summary != "Caller asked about pricing." {
		t.Fatalf("summary not folded: %q", out.Summary)
	}
	if out.ExtractedFields["name"] != "Pat" {
		t.Fatalf("fields not folded: %+v", out.ExtractedFields)
	}
	if _, ok := out.ExtractedFields["email"]; ok {
		t.Fatalf("empty field values must be omitted")
	}
	if len(out.MemoryFacts) != 1 {
		t.Fatalf("facts not deduplicated: %+v", out.MemoryFacts)
	}
}

func TestSaveAppointment_NeverDemotesScheduled(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, err := svc.Reconcile(context.Background(), testSecret, CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_11",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	ms := int64(1700001000000)
	first, err := svc.SaveAppointment(context.Background(), testSecret, Appointment{
		WorkspaceID:       "w1",
		SessionID:         sess.ID,
		Status:            AppointmentStatusScheduled,
		ScheduledAtMillis: &ms,
	})
	if err != nil {
		t.Fatalf("save scheduled: %v", err)
	}

	_, err = svc.SaveAppointment(context.Background(), testSecret, Appointment{
		WorkspaceID: "w1",
		SessionID:   sess.ID,
		Status:      AppointmentStatusNeedsFollowup,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	again, err := svc.SaveAppointment(context.Background(), testSecret, Appointment{
		WorkspaceID:       "w1",
		SessionID:         sess.ID,
		Status:            AppointmentStatusScheduled,
		ScheduledAtMillis: &ms,
	})
	if err != nil {
		t.Fatalf("idempotent rewrite: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("appointment not upserted by session id")
	}
}
