package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkform/inkform/libs/db"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

const intakeUniqueConstraint = "anamnesis_forms_appointment_id_key"

// PostgresStore is the authoritative appointment store. Every transition is a
// conditional update on the current state, written in one transaction with
// its outbox event.
type PostgresStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

func NewPostgresStore(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{pool: pool, outbox: outboxRepo, now: time.Now}
}

const appointmentColumns = `id::text, studio_id::text, client_name, COALESCE(client_email, ''), appointment_date,
	COALESCE(description, ''), price, deposit, deposit_paid, status, payment_status,
	COALESCE(calendar_event_id, ''), reminder_sent_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.StudioID,
		&a.ClientName,
		&a.ClientEmail,
		&a.AppointmentDate,
		&a.Description,
		&a.Price,
		&a.Deposit,
		&a.DepositPaid,
		&a.Status,
		&a.PaymentStatus,
		&a.CalendarEventID,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func statusNames(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func paymentNames(in []model.PaymentStatus) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = string(p)
	}
	return out
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PostgresStore) Create(ctx context.Context, d model.Draft) (model.Appointment, error) {
	var appt model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, studio_id, client_name, client_email, appointment_date, description, price, deposit, deposit_paid, status, payment_status)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+appointmentColumns,
			uuid.NewString(), d.StudioID, d.ClientName, d.ClientEmail, d.AppointmentDate, d.Description,
			d.Price, d.Deposit, d.DepositPaid, model.StatusScheduled, model.InitialPaymentStatus(d.DepositPaid),
		))
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.EventBooked, appt)
	})
	if err != nil {
		return model.Appointment{}, persistence("create appointment", err)
	}
	return appt, nil
}

func (s *PostgresStore) Get(ctx context.Context, studioID, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND studio_id = $2
	`, id, studioID))
	if db.IsNoRows(err) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, persistence("get appointment", err)
	}
	return appt, nil
}

func (s *PostgresStore) List(ctx context.Context, studioID string, f ListFilter) ([]model.Appointment, error) {
	where := []string{"studio_id = $1"}
	args := []any{studioID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("appointment_date < $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, f.limit())

	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY appointment_date ASC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, persistence("list appointments", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, persistence("list appointments", err)
	}
	return appts, nil
}

// AttachIntake flips scheduled to checked_in and inserts the intake form in
// the same transaction. Either both land or neither does.
func (s *PostgresStore) AttachIntake(ctx context.Context, studioID, id string, form model.IntakeForm) error {
	if !validID(id) {
		return ErrNotFound
	}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $3, updated_at = now()
			WHERE id = $1 AND studio_id = $2 AND status = ANY($4)
			RETURNING `+appointmentColumns,
			id, studioID, model.StatusCheckedIn, statusNames(model.StatusSources(model.StatusCheckedIn))))
		if db.IsNoRows(err) {
			if _, _, lookupErr := s.currentState(ctx, tx, studioID, id); lookupErr != nil {
				return lookupErr
			}
			return ErrInvalidState
		}
		if err != nil {
			return err
		}

		query, args := intakeInsert(id, form)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			if db.IsUniqueViolation(err, intakeUniqueConstraint) {
				return ErrDuplicateIntake
			}
			return err
		}
		return s.emit(ctx, tx, outbox.EventCheckedIn, appt)
	})
	return classify("attach intake", err)
}

// intakeInsert builds the anamnesis_forms insert from the question list so
// the column order always matches model.Questions.
func intakeInsert(appointmentID string, form model.IntakeForm) (string, []any) {
	cols := []string{"appointment_id"}
	args := []any{appointmentID}
	for _, q := range model.Questions {
		cols = append(cols, string(q))
		args = append(args, form.Answers[q])
	}
	for _, q := range model.Questions {
		col, ok := model.DetailQuestions[q]
		if !ok {
			continue
		}
		cols = append(cols, col)
		if d, present := form.Details[q]; present {
			args = append(args, d)
		} else {
			args = append(args, nil)
		}
	}
	cols = append(cols, "place", "signature_date", "client_signature", "practitioner_signature")
	args = append(args, form.Place, form.SignatureDate, form.ClientSignature, form.PractitionerSignature)

	marks := make([]string, len(args))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := "INSERT INTO anamnesis_forms (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return query, args
}

func (s *PostgresStore) GetIntake(ctx context.Context, studioID, id string) (model.IntakeForm, error) {
	if !validID(id) {
		return model.IntakeForm{}, ErrNotFound
	}

	cols := make([]string, 0, len(model.Questions)+len(model.DetailQuestions)+6)
	for _, q := range model.Questions {
		cols = append(cols, "f."+string(q))
	}
	for _, q := range model.Questions {
		if col, ok := model.DetailQuestions[q]; ok {
			cols = append(cols, "f."+col)
		}
	}
	cols = append(cols, "f.place", "f.signature_date", "f.client_signature", "f.practitioner_signature", "f.created_at")

	answers := make([]bool, len(model.Questions))
	details := make([]*string, 0, len(model.DetailQuestions))
	dest := make([]any, 0, len(cols))
	for i := range answers {
		dest = append(dest, &answers[i])
	}
	for _, q := range model.Questions {
		if _, ok := model.DetailQuestions[q]; ok {
			details = append(details, nil)
			dest = append(dest, &details[len(details)-1])
		}
	}
	form := model.IntakeForm{AppointmentID: id}
	dest = append(dest, &form.Place, &form.SignatureDate, &form.ClientSignature, &form.PractitionerSignature, &form.CreatedAt)

	err := s.pool.QueryRow(ctx, `
		SELECT `+strings.Join(cols, ", ")+`
		FROM anamnesis_forms f
		JOIN appointments a ON a.id = f.appointment_id
		WHERE f.appointment_id = $1 AND a.studio_id = $2
	`, id, studioID).Scan(dest...)
	if db.IsNoRows(err) {
		return model.IntakeForm{}, ErrNotFound
	}
	if err != nil {
		return model.IntakeForm{}, persistence("get intake", err)
	}

	form.Answers = make(map[model.Question]bool, len(model.Questions))
	form.Details = map[model.Question]string{}
	di := 0
	for i, q := range model.Questions {
		form.Answers[q] = answers[i]
		if _, ok := model.DetailQuestions[q]; ok {
			if details[di] != nil {
				form.Details[q] = *details[di]
			}
			di++
		}
	}
	return form, nil
}

func (s *PostgresStore) MarkFullyPaid(ctx context.Context, studioID, id string) error {
	return s.setPayment(ctx, studioID, id, model.PaymentFullyPaid, outbox.EventPaid)
}

func (s *PostgresStore) MarkDepositPaid(ctx context.Context, studioID, id string) error {
	return s.setPayment(ctx, studioID, id, model.PaymentDepositPaid, outbox.EventDepositPaid)
}

// setPayment moves payment_status to target. Being there already is a no-op.
func (s *PostgresStore) setPayment(ctx context.Context, studioID, id string, target model.PaymentStatus, eventType string) error {
	if !validID(id) {
		return ErrNotFound
	}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET payment_status = $3, updated_at = now()
			WHERE id = $1 AND studio_id = $2 AND payment_status = ANY($4)
			RETURNING `+appointmentColumns,
			id, studioID, target, paymentNames(model.PaymentSources(target))))
		if db.IsNoRows(err) {
			_, payment, lookupErr := s.currentState(ctx, tx, studioID, id)
			if lookupErr != nil {
				return lookupErr
			}
			if payment == target {
				return nil
			}
			return ErrInvalidState
		}
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, eventType, appt)
	})
	return classify("update payment status", err)
}

func (s *PostgresStore) Cancel(ctx context.Context, studioID, id string) (bool, error) {
	if !validID(id) {
		return false, ErrNotFound
	}
	changed := false
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $3, payment_status = $4, updated_at = now()
			WHERE id = $1 AND studio_id = $2 AND status = ANY($5)
			RETURNING `+appointmentColumns,
			id, studioID, model.StatusCancelled, model.PaymentCancelled, statusNames(model.StatusSources(model.StatusCancelled))))
		if db.IsNoRows(err) {
			// Already cancelled, or unknown.
			_, _, lookupErr := s.currentState(ctx, tx, studioID, id)
			return lookupErr
		}
		if err != nil {
			return err
		}
		changed = true
		return s.emit(ctx, tx, outbox.EventCancelled, appt)
	})
	return changed, classify("cancel appointment", err)
}

func (s *PostgresStore) RecordCalendarEvent(ctx context.Context, studioID, id, eventID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $3, updated_at = now()
		WHERE id = $1 AND studio_id = $2
	`, id, studioID, eventID)
	if err != nil {
		return persistence("record calendar event", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, studioID, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $3, updated_at = now()
		WHERE id = $1 AND studio_id = $2
	`, id, studioID, at)
	if err != nil {
		return persistence("mark reminder sent", err)
	}
	return nil
}

// MarkReminderAttempted stamps a reminder that could not be sent so the next
// batches skip it until the retry delay has passed.
func (s *PostgresStore) MarkReminderAttempted(ctx context.Context, studioID, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_attempted_at = $3
		WHERE id = $1 AND studio_id = $2
	`, id, studioID, at)
	if err != nil {
		return persistence("mark reminder attempted", err)
	}
	return nil
}

// ListDueReminders returns appointments matching q across all studios,
// earliest first.
func (s *PostgresStore) ListDueReminders(ctx context.Context, q ReminderQuery) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
			AND reminder_sent_at IS NULL
			AND COALESCE(client_email, '') <> ''
			AND appointment_date >= $2
			AND appointment_date < $3
			AND (reminder_attempted_at IS NULL OR reminder_attempted_at < $4)
			AND studio_id IN (SELECT id FROM studios WHERE email_notifications_enabled)
		ORDER BY appointment_date ASC
		LIMIT $5
	`, model.StatusScheduled, q.From, q.To, q.RetryBefore, q.Limit)
	if err != nil {
		return nil, persistence("list due reminders", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, persistence("list due reminders", err)
	}
	return appts, nil
}

func (s *PostgresStore) currentState(ctx context.Context, tx pgx.Tx, studioID, id string) (model.Status, model.PaymentStatus, error) {
	var status model.Status
	var payment model.PaymentStatus
	err := tx.QueryRow(ctx, `
		SELECT status, payment_status
		FROM appointments
		WHERE id = $1 AND studio_id = $2
	`, id, studioID).Scan(&status, &payment)
	if db.IsNoRows(err) {
		return "", "", ErrNotFound
	}
	return status, payment, err
}

func (s *PostgresStore) emit(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	evt, err := lifecycleEvent(eventType, appt, s.now())
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}

// classify keeps domain sentinels as they are and wraps everything else as a
// persistence failure.
func classify(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return persistence(op, err)
}
