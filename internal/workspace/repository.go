package workspace

import "context"

// Repository is the persistence contract for workspaces.
type Repository interface {
	GetByID(ctx context.Context, id string) (Workspace, bool, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (Workspace, bool, error)

	Create(ctx context.Context, w Workspace) error
	Update(ctx context.Context, w Workspace) error
}
