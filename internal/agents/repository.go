package agents

import "context"

// Repository is the persistence contract for agent configurations.
type Repository interface {
	GetByID(ctx context.Context, id string) (AgentConfig, bool, error)
	GetByExternalAgentID(ctx context.Context, externalAgentID string) (AgentConfig, bool, error)
	// GetByAssignedNumber covers numbers not yet linked to an agent record by
	// external agent id (webhook attribution fallback).
	GetByAssignedNumber(ctx context.Context, number string) (AgentConfig, bool, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]AgentConfig, error)

	Create(ctx context.Context, a AgentConfig) error
	Update(ctx context.Context, a AgentConfig) error
}
