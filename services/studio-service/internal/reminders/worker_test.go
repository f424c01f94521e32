package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
)

type fakeQueue struct {
	query     storage.ReminderQuery
	appts     []model.Appointment
	attempted []string
}

func (f *fakeQueue) ListDueReminders(_ context.Context, q storage.ReminderQuery) ([]model.Appointment, error) {
	f.query = q
	return f.appts, nil
}

func (f *fakeQueue) MarkReminderAttempted(_ context.Context, _, id string, _ time.Time) error {
	f.attempted = append(f.attempted, id)
	return nil
}

type fakeSender struct {
	results map[string]error
	calls   []string
}

func (f *fakeSender) SendReminder(_ context.Context, _, id string) (sideeffects.Report, error) {
	f.calls = append(f.calls, id)
	if err := f.results[id]; err != nil {
		return sideeffects.Report{}, err
	}
	if id == "skipped" {
		return sideeffects.Report{Email: sideeffects.StepResult{Skipped: "email notifications disabled"}}, nil
	}
	return sideeffects.Report{Email: sideeffects.StepResult{Attempted: true, OK: true}}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessBatch(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	queue := &fakeQueue{appts: []model.Appointment{{ID: "a"}, {ID: "gone"}, {ID: "skipped"}, {ID: "b"}}}
	sender := &fakeSender{results: map[string]error{"gone": lifecycle.ErrInvalidState}}

	w := NewWorker(queue, sender, discard(), WorkerConfig{Lead: 12 * time.Hour, RetryAfter: 30 * time.Minute})
	w.now = func() time.Time { return now }

	sent, err := w.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 reminders sent, got %d", sent)
	}
	if len(sender.calls) != 4 {
		t.Fatalf("expected every appointment to be tried, got %v", sender.calls)
	}
	q := queue.query
	if !q.From.Equal(now) || !q.To.Equal(now.Add(12*time.Hour)) {
		t.Fatalf("unexpected window %v - %v", q.From, q.To)
	}
	if !q.RetryBefore.Equal(now.Add(-30 * time.Minute)) {
		t.Fatalf("unexpected retry cutoff %v", q.RetryBefore)
	}
	if len(queue.attempted) != 1 || queue.attempted[0] != "skipped" {
		t.Fatalf("expected only the unsent reminder to be recorded, got %v", queue.attempted)
	}
}

func TestProcessBatchStopsOnPersistenceError(t *testing.T) {
	queue := &fakeQueue{appts: []model.Appointment{{ID: "a"}, {ID: "b"}}}
	sender := &fakeSender{results: map[string]error{"a": lifecycle.ErrPersistence}}
	w := NewWorker(queue, sender, discard(), WorkerConfig{})

	if _, err := w.processBatch(context.Background()); !errors.Is(err, lifecycle.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected batch to stop after the failure, got %v", sender.calls)
	}
}

// failingStudioNotifier fails every email for one studio and delivers the rest.
type failingStudioNotifier struct {
	failing string
	sent    map[string]int
}

func (n *failingStudioNotifier) Notify(_ context.Context, studio model.Studio, appt model.Appointment, _ sideeffects.Options) sideeffects.Report {
	if studio.ID == n.failing {
		return sideeffects.Report{Email: sideeffects.StepResult{Attempted: true, Error: "smtp: 535 authentication failed"}}
	}
	n.sent[appt.ID]++
	return sideeffects.Report{Email: sideeffects.StepResult{Attempted: true, OK: true}}
}

func TestUnsendableRemindersDoNotStarveTheQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	store := storage.NewMemoryStore()
	store.PutStudio(model.Studio{ID: "off"})
	store.PutStudio(model.Studio{ID: "broken", EmailNotificationsEnabled: true})
	store.PutStudio(model.Studio{ID: "on", EmailNotificationsEnabled: true})

	book := func(studioID string, at time.Time) model.Appointment {
		appt, err := store.Create(ctx, model.Draft{
			StudioID:        studioID,
			ClientName:      "Mara",
			ClientEmail:     "mara@example.com",
			AppointmentDate: at,
			Description:     "fine line rose",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return appt
	}
	// The earliest slots belong to studios that can never deliver.
	for i := 0; i < 3; i++ {
		book("off", now.Add(time.Duration(i+1)*time.Minute))
		book("broken", now.Add(time.Duration(i+10)*time.Minute))
	}
	target := book("on", now.Add(2*time.Hour))

	notifier := &failingStudioNotifier{failing: "broken", sent: map[string]int{}}
	controller := lifecycle.NewController(store, store, notifier, discard())
	w := NewWorker(store, controller, discard(), WorkerConfig{BatchSize: 3, RetryAfter: time.Hour})

	for tick := 0; tick < 3; tick++ {
		at := now.Add(time.Duration(tick) * time.Minute)
		w.now = func() time.Time { return at }
		if _, err := w.processBatch(ctx); err != nil {
			t.Fatalf("tick %d: processBatch failed: %v", tick, err)
		}
	}

	if notifier.sent[target.ID] != 1 {
		t.Fatalf("expected the deliverable reminder to go out once, got %d", notifier.sent[target.ID])
	}
	got, _ := store.Get(ctx, "on", target.ID)
	if got.ReminderSentAt == nil {
		t.Fatal("expected reminder_sent_at to be recorded")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("studios without email must never be notified, got %v", notifier.sent)
	}
}
