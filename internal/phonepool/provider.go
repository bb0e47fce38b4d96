package phonepool

import (
	"context"
	"errors"
)

// PhoneNumber is one provisioned number in the provider's shared pool.
type PhoneNumber struct {
	// ID is the provider's phone-number resource id, the stable handle for
	// bind and unbind calls.
	ID string `json:"id"`
	// Number is the dialable E.164 number.
	Number string `json:"number"`
	// AgentID is the provider-side agent currently answering this number,
	// empty when the number is free.
	AgentID string `json:"agent_id,omitempty"`
}

// Provider is the voice provider's phone-number API surface.
//
// The provider holds the authoritative binding state. The allocator treats
// the local database as a cache of it and resolves drift in the provider's
// favor.
type Provider interface {
	ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error)
	// BindAgent points the number at an agent. Binding an already-bound
	// number overwrites the previous assignment on the provider side.
	BindAgent(ctx context.Context, phoneNumberID, externalAgentID string) error
	// UnbindAgent detaches the number, returning it to the free pool.
	UnbindAgent(ctx context.Context, phoneNumberID string) error
}

var (
	// ErrPoolExhausted means no free number exists right now. Callers surface
	// it as a capacity condition, not a server fault.
	ErrPoolExhausted = errors.New("phonepool: no free phone numbers available")
	ErrAgentNotFound = errors.New("phonepool: agent config not found")
)
