package workspace

import (
	"context"
	"errors"
	"sync"
)

// MemoryRepo is an in-memory workspace repository for tests.
type MemoryRepo struct {
	mu         sync.Mutex
	workspaces map[string]Workspace
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{workspaces: map[string]Workspace{}}
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Workspace, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	return w, ok, nil
}

func (r *MemoryRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (Workspace, bool, error) {
	if customerID == "" {
		return Workspace{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workspaces {
		if w.StripeCustomerID == customerID {
			return w, true, nil
		}
	}
	return Workspace{}, false, nil
}

func (r *MemoryRepo) Create(ctx context.Context, w Workspace) error {
	if w.ID == "" {
		return errors.New("workspace: id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[w.ID] = w
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, w Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[w.ID]; !ok {
		return errors.New("workspace: not found")
	}
	r.workspaces[w.ID] = w
	return nil
}
