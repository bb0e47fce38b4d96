package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
	"github.com/pkondra/ring-receptionist/internal/session"
)

const testSecret = "mut-secret"

type fakeClient struct {
	summary    string
	summaryErr error

	lead    LeadResult
	leadErr error

	appt    AppointmentResult
	apptErr error

	summarizeCalls int
}

func (f *fakeClient) Summarize(ctx context.Context, transcript string) (string, error) {
	f.summarizeCalls++
	return f.summary, f.summaryErr
}

func (f *fakeClient) ExtractLead(ctx context.Context, transcript string) (LeadResult, error) {
	return f.lead, f.leadErr
}

func (f *fakeClient) ExtractAppointment(ctx context.Context, transcript string) (AppointmentResult, error) {
	return f.appt, f.apptErr
}

func setup(t *testing.T) (*session.Service, *session.MemoryRepo, session.Session) {
	t.Helper()
	repo := session.NewMemoryRepo()
	agentRepo := agents.NewMemoryRepo()
	if err := agentRepo.Create(context.Background(), agents.AgentConfig{
		ID: "ac_1", WorkspaceID: "w1", ExternalAgentID: "ag_1",
	}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	svc := session.NewService(repo, agentRepo, testSecret)
	sess, err := svc.Reconcile(context.Background(), testSecret, session.CallEvent{
		ExternalAgentID: "ag_1",
		ExternalCallID:  "call_42",
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return svc, repo, sess
}

func TestRun_AllStepsSucceed(t *testing.T) {
	svc, repo, sess := setup(t)
	client := &fakeClient{
		summary: "Caller wants a quote.",
		lead:    LeadResult{Fields: map[string]string{"name": "Pat"}, Facts: []string{"repeat caller"}},
		appt:    AppointmentResult{Contact: "Pat", Schedule: "2026-09-01T10:00:00Z", Reason: "quote"},
	}
	o := NewOrchestrator(client, svc, testSecret)

	if err := o.Run(context.Background(), sess, "Caller: Hi\nAgent: Hello", ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, ok, _ := repo.GetByID(context.Background(), sess.ID)
	if !ok {
		t.Fatalf("session missing")
	}
	if got.Status != session.StatusEnded {
		t.Fatalf("session not finalized: %s", got.Status)
	}
	if got.Summary != "Caller wants a quote." {
		t.Fatalf("summary not stored: %q", got.Summary)
	}
	if got.ExtractedFields["name"] != "Pat" || len(got.MemoryFacts) != 1 {
		t.Fatalf("lead results not folded: %+v", got)
	}

	appt, ok, _ := repo.GetAppointmentBySession(context.Background(), sess.ID)
	if !ok {
		t.Fatalf("appointment missing")
	}
	if appt.Status != session.AppointmentStatusScheduled {
		t.Fatalf("ISO schedule must mark scheduled, got %s", appt.Status)
	}
	want := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	if appt.ScheduledAtMillis == nil || *appt.ScheduledAtMillis != want {
		t.Fatalf("scheduled_at wrong: %v", appt.ScheduledAtMillis)
	}
}

func TestRun_ProviderSummarySkipsSummaryStep(t *testing.T) {
	svc, repo, sess := setup(t)
	client := &fakeClient{summary: "should not be used"}
	o := NewOrchestrator(client, svc, testSecret)

	if err := o.Run(context.Background(), sess, "Caller: Hi", "Provider already summarized."); err != nil {
		t.Fatalf("run: %v", err)
	}
	if client.summarizeCalls != 0 {
		t.Fatalf("summary step must be skipped when provider supplied one")
	}
	got, _, _ := repo.GetByID(context.Background(), sess.ID)
	if got.Summary != "Provider already summarized." {
		t.Fatalf("provider summary not kept: %q", got.Summary)
	}
}

func TestRun_LeadFailureDoesNotBlockAppointment(t *testing.T) {
	svc, repo, sess := setup(t)
	client := &fakeClient{
		summary: "ok",
		leadErr: errors.New("lead model down"),
		appt:    AppointmentResult{Contact: "Pat", Schedule: "next tuesday morning"},
	}
	o := NewOrchestrator(client, svc, testSecret)

	if err := o.Run(context.Background(), sess, "Caller: Hi", ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	appt, ok, _ := repo.GetAppointmentBySession(context.Background(), sess.ID)
	if !ok {
		t.Fatalf("appointment step must still run after lead failure")
	}
	if appt.Status != session.AppointmentStatusNeedsFollowup {
		t.Fatalf("free-text schedule must need followup, got %s", appt.Status)
	}
	if appt.PreferredTime != "next tuesday morning" || appt.ScheduledAtMillis != nil {
		t.Fatalf("free-text preference not kept: %+v", appt)
	}
}

func TestRun_AllStepsFailSessionStillFinalizes(t *testing.T) {
	svc, repo, sess := setup(t)
	boom := errors.New("extraction service down")
	client := &fakeClient{summaryErr: boom, leadErr: boom, apptErr: boom}
	o := NewOrchestrator(client, svc, testSecret)

	if err := o.Run(context.Background(), sess, "Caller: Hi\nAgent: Hello", ""); err != nil {
		t.Fatalf("step failures must not fail the run: %v", err)
	}

	got, _, _ := repo.GetByID(context.Background(), sess.ID)
	if got.Status != session.StatusEnded {
		t.Fatalf("session must finalize despite extraction failures")
	}
	if got.Summary != "" {
		t.Fatalf("summary must be absent on failure, got %q", got.Summary)
	}
	if _, ok, _ := repo.GetAppointmentBySession(context.Background(), sess.ID); ok {
		t.Fatalf("no appointment expected when the step failed")
	}
}

func TestRun_EmptyAppointmentNotCreated(t *testing.T) {
	svc, repo, sess := setup(t)
	client := &fakeClient{summary: "ok", appt: AppointmentResult{}}
	o := NewOrchestrator(client, svc, testSecret)

	if err := o.Run(context.Background(), sess, "Caller: Hi", ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok, _ := repo.GetAppointmentBySession(context.Background(), sess.ID); ok {
		t.Fatalf("empty appointment result must not create a record")
	}
}
