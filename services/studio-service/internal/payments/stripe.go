// Package payments turns payment provider webhooks into appointment payment
// transitions.
package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
)

type Kind string

const (
	KindDeposit Kind = "deposit"
	KindFull    Kind = "full"
)

// Instruction is the payment transition a provider event asks for.
type Instruction struct {
	StudioID      string
	AppointmentID string
	Kind          Kind
}

// FromStripe reads the studio_id, appointment_id and payment metadata set
// when the checkout session or payment intent was created. ok is false for
// events that do not concern an appointment payment.
func FromStripe(evt stripe.Event) (Instruction, bool, error) {
	var metadata map[string]string
	switch evt.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return Instruction{}, false, fmt.Errorf("decode checkout session: %w", err)
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return Instruction{}, false, nil
		}
		metadata = session.Metadata
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return Instruction{}, false, fmt.Errorf("decode payment intent: %w", err)
		}
		metadata = intent.Metadata
	default:
		return Instruction{}, false, nil
	}

	in := Instruction{
		StudioID:      strings.TrimSpace(metadata["studio_id"]),
		AppointmentID: strings.TrimSpace(metadata["appointment_id"]),
		Kind:          Kind(strings.ToLower(strings.TrimSpace(metadata["payment"]))),
	}
	if in.StudioID == "" || in.AppointmentID == "" {
		return Instruction{}, false, nil
	}
	switch in.Kind {
	case KindDeposit, KindFull:
	case "":
		in.Kind = KindFull
	default:
		return Instruction{}, false, fmt.Errorf("unknown payment kind %q", in.Kind)
	}
	return in, true, nil
}
