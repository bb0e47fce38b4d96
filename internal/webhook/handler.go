package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
	"github.com/pkondra/ring-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Extractor runs the post-call extraction steps and finalizes the session.
// Implemented by extraction.Orchestrator; injected as an interface so handler
// tests can fake it.
type Extractor interface {
	Run(ctx context.Context, sess session.Session, transcript, providerSummary string) error
}

// Handler is the ElevenLabs post-call webhook endpoint.
//
// Pipeline: config check -> raw body -> signature -> normalize -> dedup ->
// session reconcile -> extraction -> finalize. Responses follow the provider
// contract: 200 {success:true} on accept/ignore, 400 malformed or
// unattributable, 401 bad signature, 500 unexpected.
type Handler struct {
	// WebhookSecret signs inbound deliveries; MutationSecret authorizes
	// internal writes; ProviderAPIKey is required downstream. All three must
	// be configured before any processing happens.
	WebhookSecret  string
	MutationSecret string
	ProviderAPIKey string

	Sessions  *session.Service
	Extractor Extractor
	Dedup     Deduper

	Now func() time.Time
}

const signatureHeader = "elevenlabs-signature"

func (h Handler) HandlePostCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.WebhookSecret == "" || h.MutationSecret == "" || h.ProviderAPIKey == "" {
		log.Error("webhook secrets not configured")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session service not configured"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	if err := VerifySignature(h.WebhookSecret, c.GetHeader(signatureHeader), body, h.Now()); err != nil {
		log.Warn("webhook signature rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ev, handled, err := ParsePostCallEvent(body)
	if err != nil {
		if errors.Is(err, ErrUnattributable) {
			log.Warn("webhook event unattributable")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent not found for webhook"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if !handled {
		// Foreign event type: acknowledge so the provider does not retry.
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if h.Dedup != nil {
		seen, err := h.Dedup.Seen(c.Request.Context(), BodyKey(body))
		if err != nil {
			// Dedup is best-effort; idempotent reconcile covers the miss.
			log.Warn("webhook dedup unavailable", "err", err)
		} else if seen {
			log.Info("webhook duplicate delivery ignored", "call_id", ev.ExternalCallID)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
	}

	sess, err := h.Sessions.Reconcile(c.Request.Context(), h.MutationSecret, ev.CallEvent())
	if err != nil {
		if errors.Is(err, session.ErrAgentNotFound) {
			log.Warn("webhook agent resolution failed", "agent_id", ev.ExternalAgentID, "call_id", ev.ExternalCallID)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent not found for webhook"})
			return
		}
		log.Error("session reconcile failed", "call_id", ev.ExternalCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	if h.Extractor != nil {
		if err := h.Extractor.Run(c.Request.Context(), sess, ev.Transcript, ev.ProviderSummary); err != nil {
			// Individual extraction steps fail soft inside Run; an error here
			// means the terminal finalize write itself failed. The delivery
			// stays unmarked so the provider's redelivery is processed again.
			log.Error("session finalize failed", "session_id", sess.ID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}
	}

	if h.Dedup != nil {
		if err := h.Dedup.Mark(c.Request.Context(), BodyKey(body)); err != nil {
			log.Warn("webhook dedup mark failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
