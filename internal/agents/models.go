package agents

import "time"

// AgentConfig is one configured voice agent on a provisioned line.
//
// Invariants:
// - WorkspaceID is required on every row.
// - PhoneNumberResourceID is bound to at most one AgentConfig at a time;
//   the pool allocator is the only writer of the phone binding fields.
type AgentConfig struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	Name string `json:"name" db:"name"`

	// ExternalAgentID is the voice provider's agent identifier.
	ExternalAgentID string `json:"external_agent_id,omitempty" db:"external_agent_id"`

	// AssignedPhoneNumber is the dialable number currently bound to this agent.
	AssignedPhoneNumber string `json:"assigned_phone_number,omitempty" db:"assigned_phone_number"`
	// PhoneNumberResourceID is the provider's phone-number resource id.
	PhoneNumberResourceID string `json:"phone_number_resource_id,omitempty" db:"phone_number_resource_id"`

	// IsDefault marks the agent the subscription reconciler provisions first.
	IsDefault bool `json:"is_default" db:"is_default"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPhoneBinding reports whether the agent currently holds a pool resource.
func (a AgentConfig) HasPhoneBinding() bool {
	return a.PhoneNumberResourceID != ""
}
