package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkondra/ring-receptionist/internal/agents"
	"github.com/pkondra/ring-receptionist/internal/audit"
	"github.com/pkondra/ring-receptionist/internal/phonepool"
	"github.com/pkondra/ring-receptionist/internal/workspace"
	"github.com/pkondra/ring-receptionist/pkg/logger"
)

var ErrWorkspaceNotFound = errors.New("billing: workspace not found")

// Pool is the slice of the allocator the reconciler drives.
type Pool interface {
	Assign(ctx context.Context, workspaceID, agentConfigID string) (phonepool.AssignResult, error)
	Release(ctx context.Context, workspaceID string) error
}

// Reconciler maps subscription status changes onto phone-number pool actions.
//
// Statuses that entitle the workspace to service ensure an agent holds a
// number; statuses that end service return every number to the pool; any
// other status only updates the stored value. Re-applying the same status is
// a no-op on both sides, so billing webhook redelivery is safe.
type Reconciler struct {
	workspaces workspace.Repository
	agents     agents.Repository
	pool       Pool
	audit      *audit.Service
	clock      func() time.Time
}

func NewReconciler(workspaces workspace.Repository, agentRepo agents.Repository, pool Pool, auditSvc *audit.Service) *Reconciler {
	return &Reconciler{
		workspaces: workspaces,
		agents:     agentRepo,
		pool:       pool,
		audit:      auditSvc,
		clock:      time.Now,
	}
}

// WithClock overrides the reconciler clock for deterministic tests.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// LinkCustomer attaches the billing provider's customer id to a workspace.
// Called from checkout completion, before any subscription event arrives.
func (r *Reconciler) LinkCustomer(ctx context.Context, workspaceID, customerID string) error {
	ws, ok, err := r.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWorkspaceNotFound
	}
	if ws.StripeCustomerID == customerID {
		return nil
	}
	ws.StripeCustomerID = customerID
	ws.UpdatedAt = r.clock().UTC()
	return r.workspaces.Update(ctx, ws)
}

// Apply records the new subscription status and plan, then runs the matching
// pool action. An empty plan leaves the stored plan untouched; not every
// billing event carries one.
func (r *Reconciler) Apply(ctx context.Context, workspaceID, status, plan, stripeEventID string) error {
	log := logger.From(ctx)

	ws, ok, err := r.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWorkspaceNotFound
	}

	statusChanged := ws.SubscriptionStatus != status
	planChanged := plan != "" && ws.Plan != plan
	if statusChanged || planChanged {
		ws.SubscriptionStatus = status
		if planChanged {
			ws.Plan = plan
		}
		ws.UpdatedAt = r.clock().UTC()
		if err := r.workspaces.Update(ctx, ws); err != nil {
			return err
		}
	}
	if statusChanged {
		r.logTransition(ctx, ws.ID, stripeEventID, "subscription status is now "+status)
	}

	switch {
	case provisioningStatuses[status]:
		return r.ensureAssigned(ctx, ws.ID)
	case releasingStatuses[status]:
		return r.pool.Release(ctx, ws.ID)
	default:
		log.Debug("subscription status needs no pool action", "workspace_id", ws.ID, "status", status)
		return nil
	}
}

// ensureAssigned provisions a number unless some agent already holds one.
func (r *Reconciler) ensureAssigned(ctx context.Context, workspaceID string) error {
	all, err := r.agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	var target *agents.AgentConfig
	for i, a := range all {
		if a.HasPhoneBinding() {
			return nil
		}
		if a.ExternalAgentID == "" {
			continue
		}
		if a.IsDefault {
			target = &all[i]
		} else if target == nil {
			target = &all[i]
		}
	}
	if target == nil {
		// Nothing to provision yet; the first agent setup will assign.
		logger.From(ctx).Info("no provisionable agent in workspace", "workspace_id", workspaceID)
		return nil
	}

	if _, err := r.pool.Assign(ctx, workspaceID, target.ID); err != nil {
		return fmt.Errorf("billing: provision workspace %s: %w", workspaceID, err)
	}
	return nil
}

func (r *Reconciler) logTransition(ctx context.Context, workspaceID, stripeEventID, message string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.LogBillingTransition(ctx, workspaceID, stripeEventID, message, ""); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}
