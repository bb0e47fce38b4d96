package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresWorkspaceAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypePoolAssign}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogPoolEvent(context.Background(), EventTypePoolAssign, "w", "ac_1", "pn_1", "number bound", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].Type != EventTypePoolAssign {
		t.Fatalf("expected pool_assign")
	}
	if evs[0].AgentConfigID != "ac_1" || evs[0].PhoneNumberID != "pn_1" {
		t.Fatalf("target ids not captured: %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("id and created_at must be stamped")
	}
}

func TestService_LogBillingTransition(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogBillingTransition(context.Background(), "w", "evt_1", "subscription active", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].StripeEventID != "evt_1" {
		t.Fatalf("stripe event id not captured: %+v", evs)
	}
}
