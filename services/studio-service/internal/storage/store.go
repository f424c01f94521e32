package storage

import (
	"encoding/json"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/outbox"
)

// ListFilter narrows List. Zero values mean no bound.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status model.Status
	Limit  int
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ListFilter) match(a model.Appointment) bool {
	if !f.From.IsZero() && a.AppointmentDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.AppointmentDate.Before(f.To) {
		return false
	}
	return f.Status == "" || a.Status == f.Status
}

// ReminderQuery selects scheduled appointments starting in [From, To) whose
// client has an email address, in studios with email notifications on.
// Appointments with a failed attempt at or after RetryBefore are held back
// so they cannot crowd out the rest of the batch.
type ReminderQuery struct {
	From        time.Time
	To          time.Time
	RetryBefore time.Time
	Limit       int
}

func lifecycleEvent(eventType string, appt model.Appointment, at time.Time) (outbox.Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":   appt.ID,
		"studio_id":        appt.StudioID,
		"status":           appt.Status,
		"payment_status":   appt.PaymentStatus,
		"appointment_date": appt.AppointmentDate.UTC().Format(time.RFC3339),
		"occurred_at":      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
