// Package calendar turns appointments into provider calendar events.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/shopspring/decimal"
)

const DefaultDuration = 2 * time.Hour

type Reminder struct {
	Method  string
	Minutes int64
}

// Reminders are fixed: an email the day before and a popup an hour before.
var Reminders = []Reminder{
	{Method: "email", Minutes: 24 * 60},
	{Method: "popup", Minutes: 60},
}

type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Reminders   []Reminder
}

// Provider creates events in one studio's calendar.
type Provider interface {
	CreateEvent(ctx context.Context, evt Event) (string, error)
}

// Connector builds a Provider from a studio's stored credentials.
type Connector interface {
	Connect(ctx context.Context, credentials string) (Provider, error)
}

func AppointmentEvent(appt model.Appointment, tz string) Event {
	if _, err := time.LoadLocation(tz); tz == "" || tz == "Local" || err != nil {
		tz = "UTC"
	}
	lines := []string{
		"Client: " + appt.ClientName,
		"Description: " + appt.Description,
	}
	if amount, ok := nonZero(appt.Price); ok {
		lines = append(lines, "Total Price: €"+amount)
	}
	if amount, ok := nonZero(appt.Deposit); ok {
		lines = append(lines, "Deposit: €"+amount)
	}
	return Event{
		Summary:     fmt.Sprintf("Tattoo Appointment - %s", appt.ClientName),
		Description: strings.Join(lines, "\n"),
		Start:       appt.AppointmentDate,
		End:         appt.AppointmentDate.Add(DefaultDuration),
		TimeZone:    tz,
		Reminders:   Reminders,
	}
}

func nonZero(d decimal.NullDecimal) (string, bool) {
	if !d.Valid || d.Decimal.IsZero() {
		return "", false
	}
	return d.Decimal.StringFixed(2), true
}
