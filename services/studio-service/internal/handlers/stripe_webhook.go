package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
	"github.com/inkform/inkform/services/studio-service/internal/payments"
	"github.com/stripe/stripe-go/v79/webhook"
)

type EventLog interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Record(ctx context.Context, evt payments.ProviderEvent) error
}

type PaymentRecorder interface {
	MarkPaid(ctx context.Context, studioID, id string) error
	MarkDepositPaid(ctx context.Context, studioID, id string) error
}

type StripeWebhook struct {
	secret    string
	tolerance time.Duration
	events    EventLog
	payments  PaymentRecorder
	logger    *slog.Logger
}

func NewStripeWebhook(secret string, tolerance time.Duration, events EventLog, recorder PaymentRecorder, logger *slog.Logger) *StripeWebhook {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhook{secret: secret, tolerance: tolerance, events: events, payments: recorder, logger: logger}
}

// ServeHTTP handles Stripe webhooks (no JWT auth; signature verification is
// the auth). Stripe retries anything but 2xx, so only failures worth retrying
// return 5xx.
func (h *StripeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	evtType := string(evt.Type)
	log := h.logger.With("provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)

	seen, err := h.events.Seen(ctx, "stripe", evt.ID)
	if err != nil {
		log.Error("provider event lookup failed", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if seen {
		log.Info("payment provider event duplicate ignored")
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	in, ok, err := payments.FromStripe(evt)
	if err != nil {
		log.Warn("stripe payload not usable", "err", err)
	}
	if ok {
		log = log.With("studio_id", in.StudioID, "appointment_id", in.AppointmentID, "payment", in.Kind)
		apply := h.payments.MarkPaid
		if in.Kind == payments.KindDeposit {
			apply = h.payments.MarkDepositPaid
		}
		if err := apply(ctx, in.StudioID, in.AppointmentID); err != nil {
			switch {
			case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, lifecycle.ErrInvalidState):
				log.Warn("payment not applicable to appointment", "err", err)
			default:
				log.Error("payment apply failed", "err", err)
				http.Error(w, "failed to apply payment", http.StatusInternalServerError)
				return
			}
		} else {
			log.Info("payment applied")
		}
	}

	if err := h.events.Record(ctx, payments.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil && !errors.Is(err, payments.ErrDuplicateProviderEvent) {
		log.Error("provider event record failed", "err", err)
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
