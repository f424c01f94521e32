// Package lifecycle drives appointments through booking, check-in, payment
// and cancellation. Store writes are authoritative; side effects run after
// they commit and never change an operation's outcome.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/inkform/inkform/libs/otel"
	"github.com/inkform/inkform/services/studio-service/internal/email"
	"github.com/inkform/inkform/services/studio-service/internal/intake"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/inkform/inkform/services/studio-service/internal/lifecycle")

type Store interface {
	Create(ctx context.Context, d model.Draft) (model.Appointment, error)
	Get(ctx context.Context, studioID, id string) (model.Appointment, error)
	List(ctx context.Context, studioID string, f storage.ListFilter) ([]model.Appointment, error)
	AttachIntake(ctx context.Context, studioID, id string, form model.IntakeForm) error
	GetIntake(ctx context.Context, studioID, id string) (model.IntakeForm, error)
	MarkFullyPaid(ctx context.Context, studioID, id string) error
	MarkDepositPaid(ctx context.Context, studioID, id string) error
	Cancel(ctx context.Context, studioID, id string) (bool, error)
	MarkReminderSent(ctx context.Context, studioID, id string, at time.Time) error
}

type Studios interface {
	Studio(ctx context.Context, studioID string) (model.Studio, error)
}

type Notifier interface {
	Notify(ctx context.Context, studio model.Studio, appt model.Appointment, opts sideeffects.Options) sideeffects.Report
}

type Controller struct {
	store    Store
	studios  Studios
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewController(store Store, studios Studios, notifier Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		store:    store,
		studios:  studios,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type BookRequest struct {
	ClientName      string
	ClientEmail     string
	AppointmentDate time.Time
	Description     string
	Price           decimal.NullDecimal
	Deposit         decimal.NullDecimal
	DepositPaid     bool
	AddToCalendar   bool
	SendEmail       bool
}

type BookResult struct {
	AppointmentID string             `json:"appointment_id"`
	SideEffects   sideeffects.Report `json:"side_effects"`
}

func (req BookRequest) draft(studioID string) (model.Draft, error) {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		return model.Draft{}, &ValidationError{Code: MissingClientName, Field: "client_name"}
	}
	if req.AppointmentDate.IsZero() {
		return model.Draft{}, &ValidationError{Code: InvalidDate, Field: "appointment_date"}
	}
	if req.Price.Valid && req.Price.Decimal.IsNegative() {
		return model.Draft{}, &ValidationError{Code: InvalidAmount, Field: "price"}
	}
	if req.Deposit.Valid && req.Deposit.Decimal.IsNegative() {
		return model.Draft{}, &ValidationError{Code: InvalidAmount, Field: "deposit"}
	}
	return model.Draft{
		StudioID:        studioID,
		ClientName:      name,
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		AppointmentDate: req.AppointmentDate,
		Description:     strings.TrimSpace(req.Description),
		Price:           req.Price,
		Deposit:         req.Deposit,
		DepositPaid:     req.DepositPaid,
	}, nil
}

// Book stores the appointment, then runs the requested side effects. Once the
// row is written the booking succeeds whatever the report says.
func (c *Controller) Book(ctx context.Context, studioID string, req BookRequest) (res BookResult, err error) {
	ctx, span := c.start(ctx, "lifecycle.book", studioID, "")
	defer func() { otelx.EndSpan(span, err) }()

	d, err := req.draft(studioID)
	if err != nil {
		return BookResult{}, err
	}
	appt, err := c.store.Create(ctx, d)
	if err != nil {
		c.logger.Error("appointment create failed", "studio_id", studioID, "err", err)
		return BookResult{}, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	c.logger.Info("appointment booked",
		"studio_id", studioID,
		"appointment_id", appt.ID,
		"payment_status", appt.PaymentStatus,
	)

	opts := sideeffects.Options{AddToCalendar: req.AddToCalendar, SendEmail: req.SendEmail, Template: email.Confirmation}
	return BookResult{
		AppointmentID: appt.ID,
		SideEffects:   c.notify(ctx, appt, opts),
	}, nil
}

type CheckInRequest struct {
	Answers               intake.RawAnswers
	ClientSignature       string
	PractitionerSignature string
	Place                 string
}

func (c *Controller) CheckIn(ctx context.Context, studioID, id string, req CheckInRequest) (err error) {
	ctx, span := c.start(ctx, "lifecycle.check_in", studioID, id)
	defer func() { otelx.EndSpan(span, err) }()

	appt, err := c.store.Get(ctx, studioID, id)
	if err != nil {
		return err
	}
	if terr := appt.Status.CanTransition(model.StatusCheckedIn); terr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, terr)
	}

	form, err := intake.Validate(req.Answers, req.ClientSignature, req.PractitionerSignature, req.Place, c.now())
	if err != nil {
		return err
	}
	if err := c.store.AttachIntake(ctx, studioID, id, form); err != nil {
		return err
	}
	c.logger.Info("appointment checked in", "studio_id", studioID, "appointment_id", id)
	return nil
}

// MarkPaid records full payment. Repeating it is not an error.
func (c *Controller) MarkPaid(ctx context.Context, studioID, id string) (err error) {
	ctx, span := c.start(ctx, "lifecycle.mark_paid", studioID, id)
	defer func() { otelx.EndSpan(span, err) }()

	if err := c.store.MarkFullyPaid(ctx, studioID, id); err != nil {
		return err
	}
	c.logger.Info("appointment paid", "studio_id", studioID, "appointment_id", id)
	return nil
}

func (c *Controller) MarkDepositPaid(ctx context.Context, studioID, id string) (err error) {
	ctx, span := c.start(ctx, "lifecycle.mark_deposit_paid", studioID, id)
	defer func() { otelx.EndSpan(span, err) }()

	if err := c.store.MarkDepositPaid(ctx, studioID, id); err != nil {
		return err
	}
	c.logger.Info("appointment deposit paid", "studio_id", studioID, "appointment_id", id)
	return nil
}

type CancelResult struct {
	Changed     bool               `json:"changed"`
	SideEffects sideeffects.Report `json:"side_effects"`
}

// Cancel moves both status fields to cancelled. Cancelling twice is a no-op
// and only the call that changed the row notifies the client.
func (c *Controller) Cancel(ctx context.Context, studioID, id string, notifyClient bool) (res CancelResult, err error) {
	ctx, span := c.start(ctx, "lifecycle.cancel", studioID, id)
	defer func() { otelx.EndSpan(span, err) }()

	appt, err := c.store.Get(ctx, studioID, id)
	if err != nil {
		return CancelResult{}, err
	}
	if appt.Status == model.StatusCancelled {
		return CancelResult{}, nil
	}

	changed, err := c.store.Cancel(ctx, studioID, id)
	if err != nil || !changed {
		return CancelResult{}, err
	}
	c.logger.Info("appointment cancelled", "studio_id", studioID, "appointment_id", id)

	appt.Status = model.StatusCancelled
	appt.PaymentStatus = model.PaymentCancelled
	res.Changed = true
	res.SideEffects = c.notify(ctx, appt, sideeffects.Options{SendEmail: notifyClient, Template: email.Cancellation})
	return res, nil
}

// SendReminder emails the client about a scheduled appointment and stamps
// the appointment when the mail went out.
func (c *Controller) SendReminder(ctx context.Context, studioID, id string) (report sideeffects.Report, err error) {
	ctx, span := c.start(ctx, "lifecycle.send_reminder", studioID, id)
	defer func() { otelx.EndSpan(span, err) }()

	appt, err := c.store.Get(ctx, studioID, id)
	if err != nil {
		return sideeffects.Report{}, err
	}
	if appt.Status != model.StatusScheduled {
		return sideeffects.Report{}, fmt.Errorf("%w: reminders need a scheduled appointment, got %s", ErrInvalidState, appt.Status)
	}

	report = c.notify(ctx, appt, sideeffects.Options{SendEmail: true, Template: email.Reminder})
	if report.Email.OK {
		if err := c.store.MarkReminderSent(ctx, studioID, id, c.now()); err != nil {
			c.logger.Warn("reminder sent but not recorded", "appointment_id", id, "err", err)
		}
	}
	return report, nil
}

func (c *Controller) Get(ctx context.Context, studioID, id string) (model.Appointment, error) {
	return c.store.Get(ctx, studioID, id)
}

func (c *Controller) List(ctx context.Context, studioID string, f storage.ListFilter) ([]model.Appointment, error) {
	return c.store.List(ctx, studioID, f)
}

func (c *Controller) Intake(ctx context.Context, studioID, id string) (model.IntakeForm, error) {
	return c.store.GetIntake(ctx, studioID, id)
}

// notify loads studio settings and runs the side effects. A studio that cannot
// be loaded fails every requested step instead of the operation.
func (c *Controller) notify(ctx context.Context, appt model.Appointment, opts sideeffects.Options) sideeffects.Report {
	if !opts.AddToCalendar && !opts.SendEmail {
		return sideeffects.Report{
			Calendar: sideeffects.StepResult{Skipped: "not requested"},
			Email:    sideeffects.StepResult{Skipped: "not requested"},
		}
	}
	studio, err := c.studios.Studio(ctx, appt.StudioID)
	if err != nil {
		c.logger.Warn("studio settings unavailable, side effects skipped", "studio_id", appt.StudioID, "err", err)
		return unavailable(opts, err)
	}
	return c.notifier.Notify(ctx, studio, appt, opts)
}

func unavailable(opts sideeffects.Options, err error) sideeffects.Report {
	step := func(requested bool) sideeffects.StepResult {
		if !requested {
			return sideeffects.StepResult{Skipped: "not requested"}
		}
		return sideeffects.StepResult{Attempted: true, Error: "studio settings unavailable: " + err.Error()}
	}
	return sideeffects.Report{Calendar: step(opts.AddToCalendar), Email: step(opts.SendEmail)}
}

func (c *Controller) start(ctx context.Context, name, studioID, id string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("studio.id", studioID))
	if id != "" {
		span.SetAttributes(attribute.String("appointment.id", id))
	}
	return ctx, span
}
