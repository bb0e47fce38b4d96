package billing

import (
	"context"
	"time"
)

// Subscription statuses as reported by the billing provider. Only two sets
// matter to provisioning; everything else passes through unchanged.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
	StatusPaused            = "paused"
)

// provisioningStatuses entitle the workspace to a phone number.
var provisioningStatuses = map[string]bool{
	StatusActive:   true,
	StatusTrialing: true,
}

// releasingStatuses tear the workspace's numbers down.
var releasingStatuses = map[string]bool{
	StatusCanceled:          true,
	StatusIncompleteExpired: true,
	StatusUnpaid:            true,
	StatusPaused:            true,
}

// Event is one received billing webhook event, stored append-only and keyed
// by the provider's event id so redeliveries are recognized.
type Event struct {
	ID            string    `json:"id" db:"id"`
	StripeEventID string    `json:"stripe_event_id" db:"stripe_event_id"`
	Type          string    `json:"type" db:"type"`
	WorkspaceID   string    `json:"workspace_id,omitempty" db:"workspace_id"`
	Payload       string    `json:"payload,omitempty" db:"payload"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// EventStore records billing events idempotently.
type EventStore interface {
	// Record appends the event. created=false means the provider event id
	// was seen before and the delivery should be acknowledged without
	// reprocessing.
	Record(ctx context.Context, e Event) (created bool, err error)
}
