package workspace

import "time"

// Workspace is the billing and ownership root containing one or more
// configured voice agents. Subscription status drives the phone-number
// pool via the billing reconciler.
type Workspace struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	StripeCustomerID   string `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	SubscriptionStatus string `json:"subscription_status,omitempty" db:"subscription_status"`
	Plan               string `json:"plan,omitempty" db:"plan"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
