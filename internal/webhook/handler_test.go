package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
	"github.com/pkondra/ring-receptionist/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	testWebhookSecret  = "whsec"
	testMutationSecret = "mut-secret"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Run(ctx context.Context, sess session.Session, transcript, providerSummary string) error {
	f.calls++
	return f.err
}

type env struct {
	router    *gin.Engine
	repo      *session.MemoryRepo
	extractor *fakeExtractor
	dedup     *MemoryDeduper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := session.NewMemoryRepo()
	agentRepo := agents.NewMemoryRepo()
	if err := agentRepo.Create(context.Background(), agents.AgentConfig{
		ID: "ac_1", WorkspaceID: "w1", ExternalAgentID: "ag_1", AssignedPhoneNumber: "+15550001111",
	}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	svc := session.NewService(repo, agentRepo, testMutationSecret).
		WithClock(func() time.Time { return testNow })

	e := &env{
		repo:      repo,
		extractor: &fakeExtractor{},
		dedup:     NewMemoryDeduper(),
	}
	h := Handler{
		WebhookSecret:  testWebhookSecret,
		MutationSecret: testMutationSecret,
		ProviderAPIKey: "xi-key",
		Sessions:       svc,
		Extractor:      e.extractor,
		Dedup:          e.dedup,
		Now:            func() time.Time { return testNow },
	}
	e.router = gin.New()
	e.router.POST("/webhooks/post-call", h.HandlePostCall)
	return e
}

func (e *env) deliver(t *testing.T, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/post-call", bytes.NewReader(body))
	if sign {
		req.Header.Set("elevenlabs-signature", signBody(testWebhookSecret, testNow.Unix(), body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postCallBody() []byte {
	return []byte(`{
		"type": "post_call_transcription",
		"data": {
			"agent_id": "ag_1",
			"conversation_id": "call_42",
			"metadata": {
				"phone_call": {"external_number": "+15557778888", "agent_number": "+15550001111"},
				"start_time_unix_secs": 1699999000,
				"call_duration_secs": 120
			},
			"analysis": {"call_summary": "Caller asked about pricing."},
			"transcript": [
				{"role": "user", "message": "Hi, how much is a visit?"},
				{"role": "agent", "message": "Let me check that for you."}
			]
		}
	}`)
}

func TestHandlePostCall_HappyPath(t *testing.T) {
	e := newEnv(t)

	w := e.deliver(t, postCallBody(), true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("missing success ack: %s", w.Body.String())
	}

	sess, ok, _ := e.repo.GetByExternalCallID(context.Background(), "call_42")
	if !ok {
		t.Fatalf("session not created")
	}
	if sess.WorkspaceID != "w1" || sess.AgentConfigID != "ac_1" {
		t.Fatalf("session attributed wrong: %+v", sess)
	}
	if sess.CallerPhone != "+15557778888" {
		t.Fatalf("caller phone = %q", sess.CallerPhone)
	}
	if sess.Status != session.StatusEnded || sess.EndedAt == nil {
		t.Fatalf("terminal event must end the session: %+v", sess)
	}
	if got := sess.EndedAt.Unix(); got != 1699999000+120 {
		t.Fatalf("ended_at = %d", got)
	}
	if e.extractor.calls != 1 {
		t.Fatalf("extractor calls = %d", e.extractor.calls)
	}
}

func TestHandlePostCall_DuplicateDeliveryProcessedOnce(t *testing.T) {
	e := newEnv(t)
	body := postCallBody()

	for i := 0; i < 2; i++ {
		if w := e.deliver(t, body, true); w.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, w.Code)
		}
	}
	if e.extractor.calls != 1 {
		t.Fatalf("duplicate body must be deduped, extractor calls = %d", e.extractor.calls)
	}
}

func TestHandlePostCall_RedeliveryWithoutDedupIsIdempotent(t *testing.T) {
	e := newEnv(t)
	body := postCallBody()

	first := e.deliver(t, body, true)
	// Simulate a dedup store that lost state between deliveries.
	e.dedup.seen = map[string]struct{}{}
	second := e.deliver(t, body, true)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	sessions, _ := e.repo.ListByWorkspace(context.Background(), "w1", 0)
	if len(sessions) != 1 {
		t.Fatalf("redelivery created %d sessions", len(sessions))
	}
}

func TestHandlePostCall_BadSignature(t *testing.T) {
	e := newEnv(t)
	body := postCallBody()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/post-call", bytes.NewReader(body))
	req.Header.Set("elevenlabs-signature", signBody("wrong-secret", testNow.Unix(), body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok, _ := e.repo.GetByExternalCallID(context.Background(), "call_42"); ok {
		t.Fatalf("unsigned delivery must not create state")
	}
}

func TestHandlePostCall_MissingSignature(t *testing.T) {
	e := newEnv(t)
	if w := e.deliver(t, postCallBody(), false); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandlePostCall_EmptyBody(t *testing.T) {
	e := newEnv(t)
	if w := e.deliver(t, nil, true); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandlePostCall_ForeignEventTypeAcked(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"type": "post_call_audio", "data": {"agent_id": "ag_1"}}`)

	w := e.deliver(t, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("foreign type must be acked, status = %d", w.Code)
	}
	if e.extractor.calls != 0 {
		t.Fatalf("foreign type must not reach extraction")
	}
}

func TestHandlePostCall_UnknownAgent(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"type": "post_call_transcription", "data": {"agent_id": "ag_nope", "conversation_id": "call_9"}}`)

	w := e.deliver(t, body, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "agent not found") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandlePostCall_UnattributableEvent(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"type": "post_call_transcription", "data": {"metadata": {}}}`)

	if w := e.deliver(t, body, true); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandlePostCall_MalformedJSON(t *testing.T) {
	e := newEnv(t)
	if w := e.deliver(t, []byte(`{"type": "post_call`), true); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandlePostCall_FinalizeFailureIs500(t *testing.T) {
	e := newEnv(t)
	e.extractor.err = errors.New("finalize write failed")

	if w := e.deliver(t, postCallBody(), true); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandlePostCall_FailedDeliveryReprocessedOnRedelivery(t *testing.T) {
	e := newEnv(t)
	body := postCallBody()

	// Redelivery is the only retry path, so a failed delivery must not be
	// remembered as processed.
	e.extractor.err = errors.New("finalize write failed")
	if w := e.deliver(t, body, true); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing delivery: status = %d", w.Code)
	}

	e.extractor.err = nil
	if w := e.deliver(t, body, true); w.Code != http.StatusOK {
		t.Fatalf("redelivery: status = %d body = %s", w.Code, w.Body.String())
	}
	if e.extractor.calls != 2 {
		t.Fatalf("redelivery after failure must reprocess, extractor calls = %d", e.extractor.calls)
	}

	// A further redelivery of the now-processed body is deduped.
	if w := e.deliver(t, body, true); w.Code != http.StatusOK {
		t.Fatalf("third delivery: status = %d", w.Code)
	}
	if e.extractor.calls != 2 {
		t.Fatalf("processed body must dedup, extractor calls = %d", e.extractor.calls)
	}
}

func TestHandlePostCall_SecretsNotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handler{MutationSecret: testMutationSecret, ProviderAPIKey: "xi-key"}
	router := gin.New()
	router.POST("/webhooks/post-call", h.HandlePostCall)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/post-call", bytes.NewReader(postCallBody()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured secret must 500, got %d", w.Code)
	}
}
