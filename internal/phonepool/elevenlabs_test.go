package phonepool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestElevenLabsProvider_ListDecodesFieldVariants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		io.WriteString(w, `[
			{"phone_number_id": "p1", "phone_number": "+15550000001", "assigned_agent": {"agent_id": "ag_1"}},
			{"id": "p2", "number": "+15550000002"},
			{"phone_number_id": "p3", "phone_number": "+15550000003", "agent_id": "ag_3"}
		]`)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(srv.URL, "key", 5*time.Second)
	got, err := p.ListPhoneNumbers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []PhoneNumber{
		{ID: "p1", Number: "+15550000001", AgentID: "ag_1"},
		{ID: "p2", Number: "+15550000002"},
		{ID: "p3", Number: "+15550000003", AgentID: "ag_3"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d numbers", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestElevenLabsProvider_ListDecodesWrappedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"phone_numbers": [{"phone_number_id": "p1", "phone_number": "+15550000001"}]}`)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(srv.URL, "key", 5*time.Second)
	got, err := p.ListPhoneNumbers(context.Background())
	if err != nil || len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("got %+v err %v", got, err)
	}
}

func TestElevenLabsProvider_BindRetriesAlternateKey(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		bodies = append(bodies, body)
		if _, ok := body["agent_id"]; ok {
			// Simulate an API revision that only accepts the other key.
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(srv.URL, "key", 5*time.Second)
	if err := p.BindAgent(context.Background(), "p1", "ag_1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected fallback request, got %d", len(bodies))
	}
	if bodies[1]["assigned_agent_id"] != "ag_1" {
		t.Fatalf("fallback body = %v", bodies[1])
	}
}

func TestElevenLabsProvider_UnbindSendsNullAgent(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(srv.URL, "key", 5*time.Second)
	if err := p.UnbindAgent(context.Background(), "p1"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if v, present := body["agent_id"]; !present || v != nil {
		t.Fatalf("unbind body = %v", body)
	}
}

func TestElevenLabsProvider_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(srv.URL, "key", 5*time.Second)
	if _, err := p.ListPhoneNumbers(context.Background()); err == nil {
		t.Fatalf("expected error on 500")
	}
	if err := p.BindAgent(context.Background(), "p1", "ag_1"); err == nil {
		t.Fatalf("expected error on 500")
	}
}
