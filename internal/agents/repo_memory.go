package agents

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory agent-config repository for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	agents map[string]AgentConfig
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{agents: map[string]AgentConfig{}}
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (AgentConfig, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok, nil
}

func (r *MemoryRepo) GetByExternalAgentID(ctx context.Context, externalAgentID string) (AgentConfig, bool, error) {
	if externalAgentID == "" {
		return AgentConfig{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.ExternalAgentID == externalAgentID {
			return a, true, nil
		}
	}
	return AgentConfig{}, false, nil
}

func (r *MemoryRepo) GetByAssignedNumber(ctx context.Context, number string) (AgentConfig, bool, error) {
	if number == "" {
		return AgentConfig{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.AssignedPhoneNumber == number {
			return a, true, nil
		}
	}
	return AgentConfig{}, false, nil
}

func (r *MemoryRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]AgentConfig, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentConfig, 0)
	for _, a := range r.agents {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	// Deterministic order for tests; Postgres orders by created_at.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Create(ctx context.Context, a AgentConfig) error {
	if a.ID == "" || a.WorkspaceID == "" {
		return errors.New("agents: id and workspace_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, a AgentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; !ok {
		return errors.New("agents: not found")
	}
	r.agents[a.ID] = a
	return nil
}
