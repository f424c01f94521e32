package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/calendar"
	"github.com/inkform/inkform/services/studio-service/internal/email"
	"github.com/inkform/inkform/services/studio-service/internal/intake"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
	"github.com/shopspring/decimal"
)

type fakeCalendar struct {
	err error
}

func (f fakeCalendar) Connect(context.Context, string) (calendar.Provider, error) { return f, nil }

func (f fakeCalendar) CreateEvent(context.Context, calendar.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "gcal-123", nil
}

type fakeMail struct {
	sent []email.Message
}

func (f *fakeMail) Transport(model.SMTPSettings) (email.Transport, error) { return f, nil }

func (f *fakeMail) Send(_ context.Context, msg email.Message) (string, error) {
	f.sent = append(f.sent, msg)
	return "<id@example.com>", nil
}

const studioID = "studio-1"

type harness struct {
	ctl   *Controller
	store *storage.MemoryStore
	mail  *fakeMail
}

func newHarness(t *testing.T, calErr error) harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	store.PutStudio(model.Studio{
		ID:                         studioID,
		Name:                       "Black Lotus",
		EmailNotificationsEnabled:  true,
		CalendarIntegrationEnabled: true,
		CalendarCredentials:        `{"type":"service_account"}`,
		SMTP:                       model.SMTPSettings{Host: "smtp.example", Port: 587},
	})
	mail := &fakeMail{}
	orch := sideeffects.NewOrchestrator(fakeCalendar{err: calErr}, mail, store, logger)
	ctl := NewController(store, store, orch, logger)
	ctl.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return harness{ctl: ctl, store: store, mail: mail}
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func booking() BookRequest {
	return BookRequest{
		ClientName:      "Mara",
		ClientEmail:     "mara@example.com",
		AppointmentDate: time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC),
		Description:     "fine line rose",
		Price:           money("120.00"),
		Deposit:         money("30.00"),
		DepositPaid:     true,
		AddToCalendar:   true,
		SendEmail:       true,
	}
}

func checkIn() CheckInRequest {
	raw := intake.RawAnswers{Answers: map[model.Question]*intake.Answer{}}
	for _, q := range model.Questions {
		v := intake.Answer(false)
		raw.Answers[q] = &v
	}
	return CheckInRequest{
		Answers:               raw,
		ClientSignature:       "data:image/png;base64,AAAA",
		PractitionerSignature: "data:image/png;base64,BBBB",
		Place:                 "Berlin",
	}
}

func TestDepositPaidToCancelledScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.ctl.Book(ctx, studioID, booking())
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.Status != model.StatusScheduled || appt.PaymentStatus != model.PaymentDepositPaid {
		t.Fatalf("unexpected state after booking: %s/%s", appt.Status, appt.PaymentStatus)
	}
	if appt.CalendarEventID != "gcal-123" {
		t.Fatalf("expected calendar event recorded, got %q", appt.CalendarEventID)
	}
	if !res.SideEffects.Email.OK || len(h.mail.sent) != 1 {
		t.Fatalf("expected confirmation email, got %+v", res.SideEffects.Email)
	}

	if err := h.ctl.MarkPaid(ctx, studioID, appt.ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	appt, _ = h.ctl.Get(ctx, studioID, appt.ID)
	if appt.PaymentStatus != model.PaymentFullyPaid {
		t.Fatalf("expected fully_paid, got %s", appt.PaymentStatus)
	}

	cres, err := h.ctl.Cancel(ctx, studioID, appt.ID, false)
	if err != nil || !cres.Changed {
		t.Fatalf("Cancel failed: %v %+v", err, cres)
	}
	appt, _ = h.ctl.Get(ctx, studioID, appt.ID)
	if appt.Status != model.StatusCancelled || appt.PaymentStatus != model.PaymentCancelled {
		t.Fatalf("unexpected state after cancel: %s/%s", appt.Status, appt.PaymentStatus)
	}
}

func TestBookSurvivesCalendarFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, errors.New("calendar api unavailable"))

	res, err := h.ctl.Book(ctx, studioID, booking())
	if err != nil {
		t.Fatalf("Book must succeed when calendar fails: %v", err)
	}
	if res.AppointmentID == "" {
		t.Fatalf("expected appointment id")
	}
	if !res.SideEffects.Calendar.Attempted || res.SideEffects.Calendar.OK {
		t.Fatalf("expected failed calendar step, got %+v", res.SideEffects.Calendar)
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.CalendarEventID != "" {
		t.Fatalf("calendar event id must stay unset, got %q", appt.CalendarEventID)
	}
	if appt.PaymentStatus != model.PaymentDepositPaid {
		t.Fatalf("unexpected payment status %s", appt.PaymentStatus)
	}
}

func TestBookWithUnknownStudioStillBooks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.ctl.Book(ctx, "studio-unknown", booking())
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if res.SideEffects.Email.OK || res.SideEffects.Email.Error == "" {
		t.Fatalf("expected reported email failure, got %+v", res.SideEffects.Email)
	}
}

func TestBookValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	noName := booking()
	noName.ClientName = "  "
	noDate := booking()
	noDate.AppointmentDate = time.Time{}
	negative := booking()
	negative.Deposit = money("-1")

	cases := []struct {
		name string
		req  BookRequest
		code Code
	}{
		{"missing name", noName, MissingClientName},
		{"missing date", noDate, InvalidDate},
		{"negative deposit", negative, InvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.ctl.Book(ctx, studioID, tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
	if n := len(h.store.Events()); n != 0 {
		t.Fatalf("invalid bookings must not be stored, got %d events", n)
	}
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())

	if err := h.ctl.CheckIn(ctx, studioID, res.AppointmentID, checkIn()); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	form, err := h.ctl.Intake(ctx, studioID, res.AppointmentID)
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	if !form.SignatureDate.Equal(h.ctl.now()) {
		t.Fatalf("expected server signature date, got %v", form.SignatureDate)
	}

	err = h.ctl.CheckIn(ctx, studioID, res.AppointmentID, checkIn())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for second check-in, got %v", err)
	}
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected the transition error to be wrapped, got %v", err)
	}

	if err := h.ctl.CheckIn(ctx, studioID, "missing", checkIn()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckInCancelledIsInvalidState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())
	_, _ = h.ctl.Cancel(ctx, studioID, res.AppointmentID, false)

	if err := h.ctl.CheckIn(ctx, studioID, res.AppointmentID, checkIn()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := h.ctl.Intake(ctx, studioID, res.AppointmentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no intake form may exist, got %v", err)
	}
}

func TestCheckInMissingSignature(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())
	sentBefore := len(h.mail.sent)

	req := checkIn()
	req.ClientSignature = ""
	err := h.ctl.CheckIn(ctx, studioID, res.AppointmentID, req)
	var ve *intake.ValidationError
	if !errors.As(err, &ve) || ve.Code != intake.MissingSignature || ve.Field != "client" {
		t.Fatalf("expected missing client signature, got %v", err)
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.Status != model.StatusScheduled {
		t.Fatalf("status must stay scheduled, got %s", appt.Status)
	}
	if _, err := h.ctl.Intake(ctx, studioID, res.AppointmentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no intake form may exist, got %v", err)
	}
	if len(h.mail.sent) != sentBefore {
		t.Fatalf("check-in must not send mail")
	}
}

func TestMarkPaidIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	req := booking()
	req.DepositPaid = false
	res, _ := h.ctl.Book(ctx, studioID, req)

	for i := 0; i < 2; i++ {
		if err := h.ctl.MarkPaid(ctx, studioID, res.AppointmentID); err != nil {
			t.Fatalf("MarkPaid #%d failed: %v", i+1, err)
		}
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.PaymentStatus != model.PaymentFullyPaid {
		t.Fatalf("expected fully_paid, got %s", appt.PaymentStatus)
	}
	if err := h.ctl.MarkPaid(ctx, studioID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkDepositPaid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	req := booking()
	req.DepositPaid = false
	res, _ := h.ctl.Book(ctx, studioID, req)

	if err := h.ctl.MarkDepositPaid(ctx, studioID, res.AppointmentID); err != nil {
		t.Fatalf("MarkDepositPaid failed: %v", err)
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.PaymentStatus != model.PaymentDepositPaid {
		t.Fatalf("expected deposit_paid, got %s", appt.PaymentStatus)
	}
}

func TestCancelTwiceAndNotify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())
	sentBefore := len(h.mail.sent)

	first, err := h.ctl.Cancel(ctx, studioID, res.AppointmentID, true)
	if err != nil || !first.Changed || !first.SideEffects.Email.OK {
		t.Fatalf("unexpected first cancel: %v %+v", err, first)
	}
	second, err := h.ctl.Cancel(ctx, studioID, res.AppointmentID, true)
	if err != nil || second.Changed {
		t.Fatalf("second cancel should be a no-op: %v %+v", err, second)
	}
	if got := len(h.mail.sent) - sentBefore; got != 1 {
		t.Fatalf("expected exactly one cancellation email, got %d", got)
	}
	if h.mail.sent[len(h.mail.sent)-1].Subject != "Your tattoo appointment at Black Lotus was cancelled" {
		t.Fatalf("unexpected subject %q", h.mail.sent[len(h.mail.sent)-1].Subject)
	}
}

func TestSendReminder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())

	report, err := h.ctl.SendReminder(ctx, studioID, res.AppointmentID)
	if err != nil || !report.Email.OK {
		t.Fatalf("SendReminder failed: %v %+v", err, report)
	}
	if report.Calendar.Attempted {
		t.Fatalf("reminders must not touch the calendar")
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.ReminderSentAt == nil {
		t.Fatalf("expected reminder timestamp")
	}

	_, _ = h.ctl.Cancel(ctx, studioID, res.AppointmentID, false)
	if _, err := h.ctl.SendReminder(ctx, studioID, res.AppointmentID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for cancelled appointment, got %v", err)
	}
}

type failingCreateStore struct {
	*storage.MemoryStore
}

func (failingCreateStore) Create(context.Context, model.Draft) (model.Appointment, error) {
	return model.Appointment{}, fmt.Errorf("%w: create appointment: connection refused", ErrPersistence)
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) Notify(context.Context, model.Studio, model.Appointment, sideeffects.Options) sideeffects.Report {
	n.calls++
	return sideeffects.Report{}
}

func TestBookCreateFailureSkipsSideEffects(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutStudio(model.Studio{ID: studioID, EmailNotificationsEnabled: true, CalendarIntegrationEnabled: true})
	notifier := &countingNotifier{}
	ctl := NewController(failingCreateStore{store}, store, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := ctl.Book(context.Background(), studioID, booking())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if res.AppointmentID != "" {
		t.Fatalf("expected no appointment id, got %q", res.AppointmentID)
	}
	if notifier.calls != 0 {
		t.Fatalf("side effects must not run when the write fails, got %d calls", notifier.calls)
	}
	if len(store.Events()) != 0 {
		t.Fatalf("expected no outbox events, got %d", len(store.Events()))
	}
}

func TestConcurrentCheckInSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	res, _ := h.ctl.Book(ctx, studioID, booking())

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.ctl.CheckIn(ctx, studioID, res.AppointmentID, checkIn())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateIntake):
		default:
			t.Fatalf("unexpected check-in error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful check-in, got %d", wins)
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.Status != model.StatusCheckedIn {
		t.Fatalf("expected checked_in, got %s", appt.Status)
	}
}

func TestPaymentOnCancelledIsInvalidState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	req := booking()
	req.DepositPaid = false
	res, _ := h.ctl.Book(ctx, studioID, req)
	if _, err := h.ctl.Cancel(ctx, studioID, res.AppointmentID, false); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	for name, mark := range map[string]func(context.Context, string, string) error{
		"fully paid":   h.ctl.MarkPaid,
		"deposit paid": h.ctl.MarkDepositPaid,
	} {
		if err := mark(ctx, studioID, res.AppointmentID); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected ErrInvalidState, got %v", name, err)
		}
	}
	appt, _ := h.ctl.Get(ctx, studioID, res.AppointmentID)
	if appt.Status != model.StatusCancelled || appt.PaymentStatus != model.PaymentCancelled {
		t.Fatalf("payment state must stay cancelled, got %s/%s", appt.Status, appt.PaymentStatus)
	}
}
