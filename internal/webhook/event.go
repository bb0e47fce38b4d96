package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
)

var (
	ErrMalformedPayload = errors.New("webhook: malformed payload")
	// ErrUnattributable means no session can be addressed: the event carries
	// neither a usable agent id nor a call id. Rejected with 400 so the
	// provider's retry policy owns redelivery.
	ErrUnattributable = errors.New("webhook: event missing agent or call id")
)

// eventTypePostCall is the single event type this pipeline processes. All
// other types are acknowledged with success and dropped so the provider does
// not retry them.
const eventTypePostCall = "post_call_transcription"

type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// Turn is one normalized transcript turn.
type Turn struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"timestamp,omitempty"`
}

// PostCallEvent is the canonical internal shape of a provider post-call
// transcription payload.
type PostCallEvent struct {
	ExternalAgentID string
	ExternalCallID  string

	CallerPhone string
	CalledPhone string

	StartedAt time.Time
	EndedAt   *time.Time

	// ProviderSummary is set when the provider already ran summarization;
	// the extraction orchestrator skips its own summary step in that case.
	ProviderSummary string

	Turns []Turn
	// Transcript is the linear "Caller: ...\nAgent: ..." rendering consumed
	// by the extraction service.
	Transcript string
}

// CallEvent converts the normalized event into the reconciler's input.
func (e PostCallEvent) CallEvent() session.CallEvent {
	return session.CallEvent{
		ExternalAgentID: e.ExternalAgentID,
		ExternalCallID:  e.ExternalCallID,
		CallerPhone:     e.CallerPhone,
		CalledPhone:     e.CalledPhone,
		StartedAt:       e.StartedAt,
		EndedAt:         e.EndedAt,
	}
}

// Provider payloads drift between snake_case, camelCase and abbreviated key
// names. Each field decodes through one ordered alias list so the full set
// of accepted shapes stays reviewable in one place.
var (
	agentIDAliases  = []string{"agent_id", "agentId"}
	callIDAliases   = []string{"conversation_id", "conversationId", "call_id", "callId", "id"}
	callerAliases   = []string{"external_number", "caller_number", "caller_id", "from_number", "from"}
	calledAliases   = []string{"agent_number", "called_number", "to_number", "to"}
	startAliases    = []string{"start_time_unix_secs", "start_time", "started_at_unix_secs"}
	durationAliases = []string{"call_duration_secs", "duration_secs", "duration"}
	summaryAliases  = []string{"call_summary", "transcript_summary", "summary"}
	turnTextAliases = []string{"message", "text", "content"}
	turnRoleAliases = []string{"role", "speaker"}
)

// ParsePostCallEvent normalizes a provider webhook body.
// Returns handled=false (and no error) for foreign event types.
func ParsePostCallEvent(body []byte) (PostCallEvent, bool, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return PostCallEvent{}, false, ErrMalformedPayload
	}

	if t := firstString(root, "type", "event_type"); t != eventTypePostCall {
		return PostCallEvent{}, false, nil
	}

	data := asMap(root["data"])
	if data == nil {
		// Some deliveries inline the payload at the top level.
		data = root
	}

	ev := PostCallEvent{
		ExternalAgentID: firstString(data, agentIDAliases...),
		ExternalCallID:  firstString(data, callIDAliases...),
	}
	if ev.ExternalAgentID == "" || ev.ExternalCallID == "" {
		return PostCallEvent{}, true, ErrUnattributable
	}

	metadata := asMap(data["metadata"])
	phoneCall := asMap(metadata["phone_call"])
	ev.CallerPhone = firstString(phoneCall, callerAliases...)
	if ev.CallerPhone == "" {
		ev.CallerPhone = firstString(metadata, callerAliases...)
	}
	ev.CalledPhone = firstString(phoneCall, calledAliases...)
	if ev.CalledPhone == "" {
		ev.CalledPhone = firstString(metadata, calledAliases...)
	}

	startSecs := firstNumber(metadata, startAliases...)
	if startSecs == 0 {
		startSecs = firstNumber(data, startAliases...)
	}
	if startSecs > 0 {
		ev.StartedAt = time.Unix(int64(startSecs), 0).UTC()
	}
	durationSecs := firstNumber(metadata, durationAliases...)
	if durationSecs == 0 {
		durationSecs = firstNumber(data, durationAliases...)
	}
	if startSecs > 0 && durationSecs > 0 {
		t := time.Unix(int64(startSecs)+int64(durationSecs), 0).UTC()
		ev.EndedAt = &t
	}

	analysis := asMap(data["analysis"])
	ev.ProviderSummary = firstString(analysis, summaryAliases...)
	if ev.ProviderSummary == "" {
		ev.ProviderSummary = firstString(data, "summary")
	}

	ev.Turns = parseTurns(data["transcript"], ev.StartedAt)
	ev.Transcript = renderTranscript(ev.Turns)

	return ev, true, nil
}

func parseTurns(v any, startedAt time.Time) []Turn {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Turn, 0, len(arr))
	for _, item := range arr {
		m := asMap(item)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(firstString(m, turnTextAliases...))
		if content == "" {
			continue
		}
		turn := Turn{
			Role:    normalizeRole(firstString(m, turnRoleAliases...)),
			Content: content,
		}
		if ms := firstNumber(m, "timestamp"); ms > 0 {
			turn.TimestampMS = int64(ms)
		} else if secs := firstNumber(m, "time_in_call_secs"); secs > 0 && !startedAt.IsZero() {
			turn.TimestampMS = startedAt.UnixMilli() + int64(secs*1000)
		}
		out = append(out, turn)
	}
	return out
}

// normalizeRole maps provider role strings onto caller/agent. Anything that
// is not recognizably the agent side is the caller.
func normalizeRole(raw string) Role {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "agent") || strings.Contains(lower, "assistant") {
		return RoleAgent
	}
	return RoleCaller
}

func renderTranscript(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		if t.Role == RoleAgent {
			b.WriteString("Agent: ")
		} else {
			b.WriteString("Caller: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func firstString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) float64 {
	if m == nil {
		return 0
	}
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			if n != 0 {
				return n
			}
		case json.Number:
			if f, err := n.Float64(); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}
