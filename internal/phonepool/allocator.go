package phonepool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
	"github.com/pkondra/ring-receptionist/internal/audit"
	"github.com/pkondra/ring-receptionist/pkg/logger"
	"github.com/pkondra/ring-receptionist/pkg/utils"
)

var (
	// ErrBusy means another assignment for the workspace holds the pool lock.
	ErrBusy = errors.New("phonepool: workspace assignment already in progress")
	// ErrNoExternalAgent means the agent config was never linked to a
	// provider-side agent and cannot answer calls.
	ErrNoExternalAgent = errors.New("phonepool: agent has no external agent id")
)

const (
	unbindAttempts = 3
	unbindDelay    = 500 * time.Millisecond
)

// AssignResult reports what the allocator did for an assign call.
type AssignResult struct {
	Number PhoneNumber
	// Reused is true when the provider already showed a number bound to the
	// agent and the allocator only re-linked it internally.
	Reused bool
}

// Allocator owns the phone binding fields on AgentConfig rows.
//
// The provider enumerates the pool live; the database only remembers which
// resource each agent holds. On disagreement the provider wins: a binding the
// provider shows is re-adopted internally, a binding only the database
// remembers is treated as stale. Both directions are audit-logged.
//
// Writes follow select, external bind, internal persist, in that order. A
// crash between bind and persist is recovered by the resync path on the next
// assign. A per-workspace lock closes the window where two concurrent
// assigns pick the same free number; if the lock backend is down the
// allocator degrades to the ordering guarantee alone rather than refusing
// service.
type Allocator struct {
	provider Provider
	agents   agents.Repository
	locker   Locker
	audit    *audit.Service
	clock    func() time.Time
}

func NewAllocator(provider Provider, agentRepo agents.Repository, locker Locker, auditSvc *audit.Service) *Allocator {
	return &Allocator{
		provider: provider,
		agents:   agentRepo,
		locker:   locker,
		audit:    auditSvc,
		clock:    time.Now,
	}
}

// WithClock overrides the allocator clock for deterministic tests.
func (a *Allocator) WithClock(clock func() time.Time) *Allocator {
	a.clock = clock
	return a
}

// Assign binds a free pool number to the agent.
func (a *Allocator) Assign(ctx context.Context, workspaceID, agentConfigID string) (AssignResult, error) {
	log := logger.From(ctx)

	if a.locker != nil {
		release, ok, err := a.locker.Acquire(ctx, workspaceID)
		switch {
		case err != nil:
			log.Warn("pool lock unavailable, continuing unlocked", "workspace_id", workspaceID, "err", err)
		case !ok:
			return AssignResult{}, ErrBusy
		default:
			defer release()
		}
	}

	agent, ok, err := a.agents.GetByID(ctx, agentConfigID)
	if err != nil {
		return AssignResult{}, err
	}
	if !ok || agent.WorkspaceID != workspaceID {
		return AssignResult{}, ErrAgentNotFound
	}
	if agent.ExternalAgentID == "" {
		return AssignResult{}, ErrNoExternalAgent
	}

	pool, err := a.provider.ListPhoneNumbers(ctx)
	if err != nil {
		return AssignResult{}, fmt.Errorf("phonepool: list phone numbers: %w", err)
	}

	// A number the provider already shows bound to this agent is adopted
	// as-is, without another bind call. This absorbs a prior assign that
	// bound externally but crashed before persisting.
	for _, pn := range pool {
		if pn.AgentID == agent.ExternalAgentID {
			return a.resync(ctx, agent, pn)
		}
	}

	tracked, err := a.trackedSet(ctx, workspaceID, agent.ID)
	if err != nil {
		return AssignResult{}, err
	}

	var chosen *PhoneNumber
	for i, pn := range pool {
		if pn.AgentID != "" || pn.Number == "" {
			continue
		}
		if _, taken := tracked[pn.ID]; taken {
			// Another agent's binding that the provider has not caught up
			// with yet; never hand it out twice.
			continue
		}
		chosen = &pool[i]
		break
	}
	if chosen == nil {
		return AssignResult{}, ErrPoolExhausted
	}

	if err := a.provider.BindAgent(ctx, chosen.ID, agent.ExternalAgentID); err != nil {
		return AssignResult{}, fmt.Errorf("phonepool: bind %s: %w", chosen.ID, err)
	}
	if err := a.persistBinding(ctx, agent, *chosen); err != nil {
		// The external bind stands; the next assign resyncs it.
		log.Error("binding persisted externally but not internally", "agent_config_id", agent.ID, "phone_number_id", chosen.ID, "err", err)
		return AssignResult{}, err
	}

	a.logPool(ctx, audit.EventTypePoolAssign, agent, chosen.ID, "number bound to agent")
	return AssignResult{Number: *chosen}, nil
}

// resync re-links a provider-confirmed binding internally.
func (a *Allocator) resync(ctx context.Context, agent agents.AgentConfig, pn PhoneNumber) (AssignResult, error) {
	if agent.PhoneNumberResourceID != pn.ID || agent.AssignedPhoneNumber != pn.Number {
		if err := a.persistBinding(ctx, agent, pn); err != nil {
			return AssignResult{}, err
		}
		a.logPool(ctx, audit.EventTypePoolResync, agent, pn.ID, "provider binding re-adopted internally")
	}
	return AssignResult{Number: pn, Reused: true}, nil
}

func (a *Allocator) persistBinding(ctx context.Context, agent agents.AgentConfig, pn PhoneNumber) error {
	agent.AssignedPhoneNumber = pn.Number
	agent.PhoneNumberResourceID = pn.ID
	agent.UpdatedAt = a.clock().UTC()
	return a.agents.Update(ctx, agent)
}

// trackedSet is every phone resource id held by other agents in the workspace.
func (a *Allocator) trackedSet(ctx context.Context, workspaceID, excludeAgentID string) (map[string]struct{}, error) {
	all, err := a.agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]struct{})
	for _, other := range all {
		if other.ID == excludeAgentID {
			continue
		}
		if other.PhoneNumberResourceID != "" {
			tracked[other.PhoneNumberResourceID] = struct{}{}
		}
	}
	return tracked, nil
}

// Release returns every number held by the workspace's agents to the pool.
//
// Each provider unbind is retried a bounded number of times; a final failure
// goes to the audit dead letter and releasing continues. Internal bindings
// are cleared regardless, so billing-driven teardown always converges.
func (a *Allocator) Release(ctx context.Context, workspaceID string) error {
	log := logger.From(ctx)

	all, err := a.agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	var updateErrs []error
	for _, agent := range all {
		if !agent.HasPhoneBinding() {
			continue
		}
		phoneNumberID := agent.PhoneNumberResourceID

		err := utils.Retry(ctx, unbindAttempts, unbindDelay, func(ctx context.Context) error {
			return a.provider.UnbindAgent(ctx, phoneNumberID)
		})
		if err != nil {
			log.Warn("provider unbind failed after retries", "phone_number_id", phoneNumberID, "err", err)
			a.logPool(ctx, audit.EventTypePoolDeadLetter, agent, phoneNumberID, "unbind failed after retries, needs manual cleanup")
		} else {
			a.logPool(ctx, audit.EventTypePoolRelease, agent, phoneNumberID, "number returned to pool")
		}

		agent.AssignedPhoneNumber = ""
		agent.PhoneNumberResourceID = ""
		agent.UpdatedAt = a.clock().UTC()
		if err := a.agents.Update(ctx, agent); err != nil {
			updateErrs = append(updateErrs, fmt.Errorf("phonepool: clear binding for agent %s: %w", agent.ID, err))
		}
	}
	return errors.Join(updateErrs...)
}

func (a *Allocator) logPool(ctx context.Context, t audit.EventType, agent agents.AgentConfig, phoneNumberID, message string) {
	if a.audit == nil {
		return
	}
	if err := a.audit.LogPoolEvent(ctx, t, agent.WorkspaceID, agent.ID, phoneNumberID, message, ""); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", string(t), "err", err)
	}
}
