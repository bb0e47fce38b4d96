package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/pkondra/ring-receptionist/internal/session"
	"github.com/pkondra/ring-receptionist/pkg/logger"
)

// Orchestrator runs the three post-call extraction steps in sequence and
// finalizes the session.
//
// Each step is wrapped independently: a failure in one logs, omits that
// field set and never blocks the later steps or the terminal session write.
// Nothing here retries; redelivery of the whole webhook is the provider's
// job and the steps re-run idempotently.
type Orchestrator struct {
	client         Client
	sessions       *session.Service
	mutationSecret string
}

func NewOrchestrator(client Client, sessions *session.Service, mutationSecret string) *Orchestrator {
	return &Orchestrator{
		client:         client,
		sessions:       sessions,
		mutationSecret: mutationSecret,
	}
}

// Run executes summary, lead and appointment extraction over the transcript
// and folds the results into the session. The returned error reflects only
// the terminal finalize write; step failures are soft.
func (o *Orchestrator) Run(ctx context.Context, sess session.Session, transcript, providerSummary string) error {
	if o.sessions == nil {
		return errors.New("extraction: session service not configured")
	}
	log := logger.From(ctx)

	final := session.FinalizeInput{Summary: providerSummary}

	if transcript != "" && o.client != nil {
		// Step 1: summary, skipped when the provider already supplied one.
		if providerSummary == "" {
			if summary, err := o.client.Summarize(ctx, transcript); err != nil {
				log.Warn("summary step failed", "session_id", sess.ID, "err", err)
			} else {
				final.Summary = summary
			}
		}

		// Step 2: lead fields.
		if lead, err := o.client.ExtractLead(ctx, transcript); err != nil {
			log.Warn("lead extraction step failed", "session_id", sess.ID, "err", err)
		} else {
			final.ExtractedFields = lead.Fields
			final.MemoryFacts = lead.Facts
		}

		// Step 3: appointment. Runs regardless of step 2's outcome.
		if appt, err := o.client.ExtractAppointment(ctx, transcript); err != nil {
			log.Warn("appointment extraction step failed", "session_id", sess.ID, "err", err)
		} else if !appt.IsEmpty() {
			if _, err := o.sessions.SaveAppointment(ctx, o.mutationSecret, o.buildAppointment(sess, appt)); err != nil {
				log.Warn("appointment save failed", "session_id", sess.ID, "err", err)
			}
		}
	}

	_, err := o.sessions.Finalize(ctx, o.mutationSecret, sess.ID, final)
	return err
}

// buildAppointment resolves the schedule hint: a valid ISO-8601 timestamp
// becomes a numeric schedule and marks the appointment scheduled; anything
// else stays free text and needs a human followup.
func (o *Orchestrator) buildAppointment(sess session.Session, r AppointmentResult) session.Appointment {
	a := session.Appointment{
		WorkspaceID: sess.WorkspaceID,
		SessionID:   sess.ID,
		Status:      session.AppointmentStatusNeedsFollowup,
		Contact:     r.Contact,
		Address:     r.Address,
		Reason:      r.Reason,
		Notes:       r.Notes,
		Summary:     r.Summary,
	}
	if r.Schedule != "" {
		if t, err := time.Parse(time.RFC3339, r.Schedule); err == nil {
			ms := t.UnixMilli()
			a.ScheduledAtMillis = &ms
			a.Status = session.AppointmentStatusScheduled
		} else {
			a.PreferredTime = r.Schedule
		}
	}
	return a
}
