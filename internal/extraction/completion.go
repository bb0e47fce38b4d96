package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the black-box summarization/extraction service boundary.
// Prompt construction lives entirely on the other side of it.
type Client interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	ExtractLead(ctx context.Context, transcript string) (LeadResult, error)
	ExtractAppointment(ctx context.Context, transcript string) (AppointmentResult, error)
}

// leadFieldNames is the fixed schema of the lead extraction step: ten
// optional string fields. Unknown keys returned by the service are dropped.
var leadFieldNames = []string{
	"name",
	"phone",
	"email",
	"company",
	"address",
	"service_interest",
	"budget",
	"timeline",
	"source",
	"urgency",
}

// LeadResult is the structured output of the lead extraction step.
type LeadResult struct {
	Fields map[string]string `json:"fields"`
	Facts  []string          `json:"facts,omitempty"`
}

// AppointmentResult is the structured output of the appointment step.
// Schedule is either free text or an ISO-8601 timestamp; the orchestrator
// decides which.
type AppointmentResult struct {
	Contact  string `json:"contact,omitempty"`
	Address  string `json:"address,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// IsEmpty reports whether the appointment step produced nothing usable.
func (r AppointmentResult) IsEmpty() bool {
	return r.Contact == "" && r.Address == "" && r.Reason == "" &&
		r.Schedule == "" && r.Notes == "" && r.Summary == ""
}

// HTTPClient calls the extraction service over HTTP with a hard per-call
// wall-clock budget. No retries here: a failed step is logged and omitted.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

func (c *HTTPClient) Summarize(ctx context.Context, transcript string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/v1/summarize", transcriptRequest{Transcript: transcript}, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (c *HTTPClient) ExtractLead(ctx context.Context, transcript string) (LeadResult, error) {
	var out struct {
		Fields map[string]string `json:"fields"`
		Facts  []string          `json:"facts"`
	}
	if err := c.post(ctx, "/v1/extract/lead", transcriptRequest{Transcript: transcript}, &out); err != nil {
		return LeadResult{}, err
	}

	fields := make(map[string]string, len(leadFieldNames))
	for _, name := range leadFieldNames {
		if v, ok := out.Fields[name]; ok && v != "" {
			fields[name] = v
		}
	}
	return LeadResult{Fields: fields, Facts: out.Facts}, nil
}

func (c *HTTPClient) ExtractAppointment(ctx context.Context, transcript string) (AppointmentResult, error) {
	var out AppointmentResult
	if err := c.post(ctx, "/v1/extract/appointment", transcriptRequest{Transcript: transcript}, &out); err != nil {
		return AppointmentResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("extraction service url not configured")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("extraction service %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
