package phonepool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ElevenLabsProvider talks to the provider's conversational-AI phone-number
// API. All calls authenticate with the workspace API key header.
type ElevenLabsProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewElevenLabsProvider(baseURL, apiKey string, timeout time.Duration) *ElevenLabsProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ElevenLabsProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

const phoneNumbersPath = "/v1/convai/phone-numbers"

// phoneNumberItem tolerates the key variants the list endpoint has shipped
// with: phone_number_id vs id, phone_number vs number, and the assigned
// agent either nested or flattened.
type phoneNumberItem struct {
	PhoneNumberID string `json:"phone_number_id"`
	ID            string `json:"id"`
	PhoneNumber   string `json:"phone_number"`
	Number        string `json:"number"`
	AgentID       string `json:"agent_id"`
	AssignedAgent *struct {
		AgentID string `json:"agent_id"`
	} `json:"assigned_agent"`
}

func (it phoneNumberItem) normalize() PhoneNumber {
	pn := PhoneNumber{ID: it.PhoneNumberID, Number: it.PhoneNumber, AgentID: it.AgentID}
	if pn.ID == "" {
		pn.ID = it.ID
	}
	if pn.Number == "" {
		pn.Number = it.Number
	}
	if pn.AgentID == "" && it.AssignedAgent != nil {
		pn.AgentID = it.AssignedAgent.AgentID
	}
	return pn
}

func (p *ElevenLabsProvider) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	body, err := p.do(ctx, http.MethodGet, phoneNumbersPath, nil)
	if err != nil {
		return nil, err
	}

	// The endpoint has returned both a bare array and an object wrapper.
	var items []phoneNumberItem
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapped struct {
			PhoneNumbers []phoneNumberItem `json:"phone_numbers"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("phonepool: decode phone number list: %w", err)
		}
		items = wrapped.PhoneNumbers
	}

	out := make([]PhoneNumber, 0, len(items))
	for _, it := range items {
		pn := it.normalize()
		if pn.ID == "" {
			continue
		}
		out = append(out, pn)
	}
	return out, nil
}

func (p *ElevenLabsProvider) BindAgent(ctx context.Context, phoneNumberID, externalAgentID string) error {
	return p.patchAgent(ctx, phoneNumberID, externalAgentID)
}

func (p *ElevenLabsProvider) UnbindAgent(ctx context.Context, phoneNumberID string) error {
	return p.patchAgent(ctx, phoneNumberID, "")
}

// patchAgent updates the number's assignment. The accepted request key has
// drifted across API revisions, so a rejected agent_id payload is retried
// once as assigned_agent_id.
func (p *ElevenLabsProvider) patchAgent(ctx context.Context, phoneNumberID, externalAgentID string) error {
	if phoneNumberID == "" {
		return fmt.Errorf("phonepool: phone number id required")
	}
	path := phoneNumbersPath + "/" + phoneNumberID

	var agentValue any
	if externalAgentID != "" {
		agentValue = externalAgentID
	}

	_, err := p.do(ctx, http.MethodPatch, path, map[string]any{"agent_id": agentValue})
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.status >= 400 && apiErr.status < 500 {
		_, retryErr := p.do(ctx, http.MethodPatch, path, map[string]any{"assigned_agent_id": agentValue})
		if retryErr == nil {
			return nil
		}
	}
	return err
}

type apiError struct {
	status int
	method string
	path   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("phonepool: provider %s %s returned %d", e.method, e.path, e.status)
}

func (p *ElevenLabsProvider) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if p.baseURL == "" || p.apiKey == "" {
		return nil, fmt.Errorf("phonepool: provider client not configured")
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{status: resp.StatusCode, method: method, path: path}
	}
	return body, nil
}
