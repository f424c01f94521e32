package handlers

import (
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/shopspring/decimal"
)

type appointmentView struct {
	ID              string  `json:"id"`
	ClientName      string  `json:"client_name"`
	ClientEmail     string  `json:"client_email,omitempty"`
	AppointmentDate string  `json:"appointment_date"`
	Description     string  `json:"description,omitempty"`
	Price           *string `json:"price"`
	Deposit         *string `json:"deposit"`
	DepositPaid     bool    `json:"deposit_paid"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	CalendarEventID string  `json:"calendar_event_id,omitempty"`
	ReminderSentAt  string  `json:"reminder_sent_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func amount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func toView(a model.Appointment) appointmentView {
	v := appointmentView{
		ID:              a.ID,
		ClientName:      a.ClientName,
		ClientEmail:     a.ClientEmail,
		AppointmentDate: a.AppointmentDate.UTC().Format(time.RFC3339),
		Description:     a.Description,
		Price:           amount(a.Price),
		Deposit:         amount(a.Deposit),
		DepositPaid:     a.DepositPaid,
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		CalendarEventID: a.CalendarEventID,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.ReminderSentAt != nil {
		v.ReminderSentAt = a.ReminderSentAt.UTC().Format(time.RFC3339)
	}
	return v
}

type intakeView struct {
	AppointmentID         string            `json:"appointment_id"`
	Answers               map[string]bool   `json:"answers"`
	Details               map[string]string `json:"details"`
	Place                 string            `json:"place"`
	SignatureDate         string            `json:"signature_date"`
	ClientSignature       string            `json:"client_signature"`
	PractitionerSignature string            `json:"practitioner_signature"`
}

func toIntakeView(f model.IntakeForm) intakeView {
	v := intakeView{
		AppointmentID:         f.AppointmentID,
		Answers:               make(map[string]bool, len(f.Answers)),
		Details:               make(map[string]string, len(f.Details)),
		Place:                 f.Place,
		SignatureDate:         f.SignatureDate.UTC().Format(time.RFC3339),
		ClientSignature:       f.ClientSignature,
		PractitionerSignature: f.PractitionerSignature,
	}
	for q, a := range f.Answers {
		v.Answers[string(q)] = a
	}
	for q, d := range f.Details {
		v.Details[string(q)] = d
	}
	return v
}
