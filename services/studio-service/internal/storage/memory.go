package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/outbox"
)

// MemoryStore keeps appointments in process. It follows the same transition
// rules as PostgresStore and backs the service tests and local runs without
// a database.
type MemoryStore struct {
	mu       sync.Mutex
	appts    map[string]model.Appointment
	intakes  map[string]model.IntakeForm
	studios  map[string]model.Studio
	attempts map[string]time.Time
	events   []outbox.Event
	now      func() time.Time

	// failAfterIntake simulates a crash between the intake insert and the
	// status flip.
	failAfterIntake error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts:    map[string]model.Appointment{},
		intakes:  map[string]model.IntakeForm{},
		studios:  map[string]model.Studio{},
		attempts: map[string]time.Time{},
		now:      time.Now,
	}
}

func (m *MemoryStore) PutStudio(st model.Studio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.studios[st.ID] = st
}

func (m *MemoryStore) Studio(_ context.Context, studioID string) (model.Studio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.studios[studioID]
	if !ok {
		return model.Studio{}, ErrStudioNotFound
	}
	return st, nil
}

// Events returns the outbox events written so far.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func (m *MemoryStore) Create(_ context.Context, d model.Draft) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	appt := model.Appointment{
		ID:              uuid.NewString(),
		StudioID:        d.StudioID,
		ClientName:      d.ClientName,
		ClientEmail:     d.ClientEmail,
		AppointmentDate: d.AppointmentDate,
		Description:     d.Description,
		Price:           d.Price,
		Deposit:         d.Deposit,
		DepositPaid:     d.DepositPaid,
		Status:          model.StatusScheduled,
		PaymentStatus:   model.InitialPaymentStatus(d.DepositPaid),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	evt, err := lifecycleEvent(outbox.EventBooked, appt, now)
	if err != nil {
		return model.Appointment{}, persistence("create appointment", err)
	}
	m.appts[appt.ID] = appt
	m.events = append(m.events, evt)
	return appt, nil
}

func (m *MemoryStore) Get(_ context.Context, studioID, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(studioID, id)
}

func (m *MemoryStore) List(_ context.Context, studioID string, f ListFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Appointment
	for _, a := range m.appts {
		if a.StudioID == studioID && f.match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (m *MemoryStore) AttachIntake(_ context.Context, studioID, id string, form model.IntakeForm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, err := m.lookup(studioID, id)
	if err != nil {
		return err
	}
	if appt.Status.CanTransition(model.StatusCheckedIn) != nil {
		return ErrInvalidState
	}
	if _, exists := m.intakes[id]; exists {
		return ErrDuplicateIntake
	}

	// The intake is staged first; any later failure rolls it back.
	form.AppointmentID = id
	form.CreatedAt = m.now().UTC()
	m.intakes[id] = form
	rollback := func(err error) error {
		delete(m.intakes, id)
		return persistence("attach intake", err)
	}
	if m.failAfterIntake != nil {
		return rollback(m.failAfterIntake)
	}
	appt.Status = model.StatusCheckedIn
	appt.UpdatedAt = form.CreatedAt
	evt, err := lifecycleEvent(outbox.EventCheckedIn, appt, form.CreatedAt)
	if err != nil {
		return rollback(err)
	}
	m.appts[id] = appt
	m.events = append(m.events, evt)
	return nil
}

func (m *MemoryStore) GetIntake(_ context.Context, studioID, id string) (model.IntakeForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(studioID, id); err != nil {
		return model.IntakeForm{}, err
	}
	form, ok := m.intakes[id]
	if !ok {
		return model.IntakeForm{}, ErrNotFound
	}
	return form, nil
}

func (m *MemoryStore) MarkFullyPaid(_ context.Context, studioID, id string) error {
	return m.setPayment(studioID, id, model.PaymentFullyPaid, outbox.EventPaid)
}

func (m *MemoryStore) MarkDepositPaid(_ context.Context, studioID, id string) error {
	return m.setPayment(studioID, id, model.PaymentDepositPaid, outbox.EventDepositPaid)
}

func (m *MemoryStore) setPayment(studioID, id string, target model.PaymentStatus, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, err := m.lookup(studioID, id)
	if err != nil {
		return err
	}
	if appt.PaymentStatus == target {
		return nil
	}
	if appt.PaymentStatus.CanTransition(target) != nil {
		return ErrInvalidState
	}
	appt.PaymentStatus = target
	return m.commit(appt, eventType)
}

func (m *MemoryStore) Cancel(_ context.Context, studioID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, err := m.lookup(studioID, id)
	if err != nil {
		return false, err
	}
	if appt.Status.CanTransition(model.StatusCancelled) != nil {
		return false, nil
	}
	appt.Status = model.StatusCancelled
	appt.PaymentStatus = model.PaymentCancelled
	if err := m.commit(appt, outbox.EventCancelled); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryStore) RecordCalendarEvent(_ context.Context, studioID, id, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, err := m.lookup(studioID, id)
	if err != nil {
		return err
	}
	appt.CalendarEventID = eventID
	appt.UpdatedAt = m.now().UTC()
	m.appts[id] = appt
	return nil
}

func (m *MemoryStore) MarkReminderSent(_ context.Context, studioID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, err := m.lookup(studioID, id)
	if err != nil {
		return err
	}
	at = at.UTC()
	appt.ReminderSentAt = &at
	m.appts[id] = appt
	return nil
}

func (m *MemoryStore) MarkReminderAttempted(_ context.Context, studioID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(studioID, id); err != nil {
		return err
	}
	m.attempts[id] = at.UTC()
	return nil
}

func (m *MemoryStore) ListDueReminders(_ context.Context, q ReminderQuery) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Appointment
	for _, a := range m.appts {
		if a.Status != model.StatusScheduled || a.ReminderSentAt != nil || a.ClientEmail == "" {
			continue
		}
		if a.AppointmentDate.Before(q.From) || !a.AppointmentDate.Before(q.To) {
			continue
		}
		if at, ok := m.attempts[a.ID]; ok && !at.Before(q.RetryBefore) {
			continue
		}
		if st, ok := m.studios[a.StudioID]; !ok || !st.EmailNotificationsEnabled {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) lookup(studioID, id string) (model.Appointment, error) {
	appt, ok := m.appts[id]
	if !ok || appt.StudioID != studioID {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (m *MemoryStore) commit(appt model.Appointment, eventType string) error {
	now := m.now().UTC()
	appt.UpdatedAt = now
	evt, err := lifecycleEvent(eventType, appt, now)
	if err != nil {
		return persistence("write event", err)
	}
	m.appts[appt.ID] = appt
	m.events = append(m.events, evt)
	return nil
}
