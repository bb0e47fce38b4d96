package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pkondra/ring-receptionist/internal/workspace"
	"github.com/pkondra/ring-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Handler is the billing provider's webhook endpoint.
//
// Signature verification is delegated to the provider SDK. Every verified
// event is appended to the event log first; a previously seen event id is
// acknowledged without reprocessing. Dispatch then feeds the subscription
// reconciler.
type Handler struct {
	// WebhookSecret is the endpoint signing secret. Requests 500 until it is
	// configured.
	WebhookSecret string

	Workspaces workspace.Repository
	Reconciler *Reconciler
	Events     EventStore
}

const stripeSignatureHeader = "Stripe-Signature"

func (h Handler) HandleWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	if h.WebhookSecret == "" {
		log.Error("billing webhook secret not configured")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}
	if h.Reconciler == nil || h.Workspaces == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	// Dashboards pin webhook payloads to an API version independent of the
	// SDK, so the version mismatch check is disabled.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader(stripeSignatureHeader), h.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn("billing webhook signature rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if h.Events != nil {
		created, err := h.Events.Record(c.Request.Context(), Event{
			StripeEventID: event.ID,
			Type:          string(event.Type),
			Payload:       string(payload),
		})
		if err != nil {
			log.Error("billing event log append failed", "event_id", event.ID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
		if !created {
			log.Info("billing duplicate delivery ignored", "event_id", event.ID)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	if err := h.dispatch(c, event); err != nil {
		log.Error("billing event processing failed", "event_id", event.ID, "type", string(event.Type), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h Handler) dispatch(c *gin.Context, event stripe.Event) error {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	switch string(event.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return err
		}
		workspaceID := sess.ClientReferenceID
		if workspaceID == "" {
			workspaceID = sess.Metadata["workspace_id"]
		}
		if workspaceID == "" {
			log.Warn("checkout session carries no workspace reference", "event_id", event.ID)
			return nil
		}
		if sess.Customer != nil && sess.Customer.ID != "" {
			if err := h.Reconciler.LinkCustomer(ctx, workspaceID, sess.Customer.ID); err != nil {
				return err
			}
		}
		return h.Reconciler.Apply(ctx, workspaceID, StatusActive, sess.Metadata["plan"], event.ID)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		status := string(sub.Status)
		if string(event.Type) == "customer.subscription.deleted" {
			status = StatusCanceled
		}
		return h.applyByCustomer(c, event.ID, customerID(sub.Customer), status, subscriptionPlan(&sub))

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return err
		}
		return h.applyByCustomer(c, event.ID, customerID(inv.Customer), StatusPastDue, "")

	default:
		// Unsubscribed event types still reach shared endpoints; ack them.
		log.Debug("billing event type ignored", "type", string(event.Type))
		return nil
	}
}

// applyByCustomer resolves the workspace behind a customer id and applies the
// status. An unknown customer is acknowledged, not errored: returning 5xx
// would make the provider redeliver an event this deployment can never use.
func (h Handler) applyByCustomer(c *gin.Context, eventID, custID, status, plan string) error {
	if custID == "" {
		return errors.New("billing: event carries no customer id")
	}
	ws, ok, err := h.Workspaces.GetByStripeCustomerID(c.Request.Context(), custID)
	if err != nil {
		return err
	}
	if !ok {
		logger.FromGin(c).Warn("no workspace for billing customer", "customer_id", custID, "event_id", eventID)
		return nil
	}
	return h.Reconciler.Apply(c.Request.Context(), ws.ID, status, plan, eventID)
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// subscriptionPlan names the plan a subscription is on: explicit metadata
// wins, then the first item's price nickname, then the price id.
func subscriptionPlan(sub *stripe.Subscription) string {
	if sub == nil {
		return ""
	}
	if p := sub.Metadata["plan"]; p != "" {
		return p
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if n := sub.Items.Data[0].Price.Nickname; n != "" {
			return n
		}
		return sub.Items.Data[0].Price.ID
	}
	return ""
}
