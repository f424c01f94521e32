// Package sideeffects runs the best-effort calendar and email work that
// follows a committed appointment change.
package sideeffects

import (
	"context"
	"log/slog"

	"github.com/inkform/inkform/services/studio-service/internal/calendar"
	"github.com/inkform/inkform/services/studio-service/internal/email"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/inkform/inkform/services/studio-service/internal/sideeffects")

type Options struct {
	AddToCalendar bool
	SendEmail     bool
	Template      email.Template
}

// StepResult describes one side effect. Skipped holds the reason a step was
// not attempted.
type StepResult struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	Skipped   string `json:"skipped,omitempty"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	Calendar StepResult `json:"calendar"`
	Email    StepResult `json:"email"`
}

func (r Report) Failed() bool {
	return (r.Calendar.Attempted && !r.Calendar.OK) || (r.Email.Attempted && !r.Email.OK)
}

// EventRecorder stores the provider event id on the appointment.
type EventRecorder interface {
	RecordCalendarEvent(ctx context.Context, studioID, appointmentID, eventID string) error
}

type Orchestrator struct {
	calendars calendar.Connector
	mail      email.Dialer
	recorder  EventRecorder
	logger    *slog.Logger
}

func NewOrchestrator(calendars calendar.Connector, mail email.Dialer, recorder EventRecorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{calendars: calendars, mail: mail, recorder: recorder, logger: logger}
}

// Notify runs the enabled steps concurrently. It never returns an error:
// failures are reported per step and logged.
func (o *Orchestrator) Notify(ctx context.Context, studio model.Studio, appt model.Appointment, opts Options) Report {
	ctx, span := tracer.Start(ctx, "sideeffects.notify")
	defer span.End()

	var report Report
	var g errgroup.Group
	g.Go(func() error {
		report.Calendar = o.calendarStep(ctx, studio, appt, opts)
		return nil
	})
	g.Go(func() error {
		report.Email = o.emailStep(ctx, studio, appt, opts)
		return nil
	})
	_ = g.Wait()

	span.SetAttributes(
		attribute.String("appointment.id", appt.ID),
		attribute.Bool("calendar.ok", report.Calendar.OK),
		attribute.Bool("email.ok", report.Email.OK),
	)
	return report
}

func (o *Orchestrator) calendarStep(ctx context.Context, studio model.Studio, appt model.Appointment, opts Options) StepResult {
	switch {
	case !opts.AddToCalendar:
		return StepResult{Skipped: "not requested"}
	case !studio.CalendarIntegrationEnabled:
		return StepResult{Skipped: "calendar integration disabled"}
	case studio.CalendarCredentials == "":
		return StepResult{Skipped: "no calendar credentials"}
	case o.calendars == nil:
		return StepResult{Skipped: "calendar provider not configured"}
	}

	res := StepResult{Attempted: true}
	provider, err := o.calendars.Connect(ctx, studio.CalendarCredentials)
	if err != nil {
		return o.failed(res, "calendar", appt, err)
	}
	eventID, err := provider.CreateEvent(ctx, calendar.AppointmentEvent(appt, studio.Timezone))
	if err != nil {
		return o.failed(res, "calendar", appt, err)
	}
	res.OK = true
	res.ID = eventID

	if o.recorder != nil {
		if err := o.recorder.RecordCalendarEvent(ctx, appt.StudioID, appt.ID, eventID); err != nil {
			o.logger.Warn("calendar event id not stored",
				"appointment_id", appt.ID,
				"calendar_event_id", eventID,
				"err", err,
			)
		}
	}
	return res
}

func (o *Orchestrator) emailStep(ctx context.Context, studio model.Studio, appt model.Appointment, opts Options) StepResult {
	switch {
	case !opts.SendEmail:
		return StepResult{Skipped: "not requested"}
	case appt.ClientEmail == "":
		return StepResult{Skipped: "no client email"}
	case !studio.EmailNotificationsEnabled:
		return StepResult{Skipped: "email notifications disabled"}
	case o.mail == nil:
		return StepResult{Skipped: "mail transport not configured"}
	}

	tmpl := opts.Template
	if tmpl == "" {
		tmpl = email.Confirmation
	}
	res := StepResult{Attempted: true}
	msg, err := email.Render(tmpl, studio, appt)
	if err != nil {
		return o.failed(res, "email", appt, err)
	}
	transport, err := o.mail.Transport(studio.SMTP)
	if err != nil {
		return o.failed(res, "email", appt, err)
	}
	id, err := transport.Send(ctx, msg)
	if err != nil {
		return o.failed(res, "email", appt, err)
	}
	res.OK = true
	res.ID = id
	return res
}

func (o *Orchestrator) failed(res StepResult, step string, appt model.Appointment, err error) StepResult {
	o.logger.Warn("side effect failed", "step", step, "appointment_id", appt.ID, "err", err)
	res.Error = err.Error()
	return res
}
