// Package reminders emails clients ahead of their scheduled appointments.
package reminders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
)

// Queue lists due reminders and remembers the ones that could not be sent.
type Queue interface {
	ListDueReminders(ctx context.Context, q storage.ReminderQuery) ([]model.Appointment, error)
	MarkReminderAttempted(ctx context.Context, studioID, id string, at time.Time) error
}

type Sender interface {
	SendReminder(ctx context.Context, studioID, id string) (sideeffects.Report, error)
}

type Worker struct {
	queue      Queue
	sender     Sender
	logger     *slog.Logger
	interval   time.Duration
	lead       time.Duration
	retryAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// WorkerConfig tunes the worker. RetryAfter is how long a reminder that
// could not be sent waits before it is listed again.
type WorkerConfig struct {
	Interval   time.Duration
	Lead       time.Duration
	RetryAfter time.Duration
	BatchSize  int
}

func NewWorker(queue Queue, sender Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		queue:      queue,
		sender:     sender,
		logger:     logger,
		interval:   cfg.Interval,
		lead:       cfg.Lead,
		retryAfter: cfg.RetryAfter,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// processBatch sends reminders for appointments starting within the lead
// window and returns how many went out.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	now := w.now().UTC()
	appts, err := w.queue.ListDueReminders(ctx, storage.ReminderQuery{
		From:        now,
		To:          now.Add(w.lead),
		RetryBefore: now.Add(-w.retryAfter),
		Limit:       w.batchSize,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, appt := range appts {
		report, err := w.sender.SendReminder(ctx, appt.StudioID, appt.ID)
		switch {
		case errors.Is(err, lifecycle.ErrInvalidState), errors.Is(err, lifecycle.ErrNotFound):
			// changed since it was listed
			continue
		case err != nil:
			return sent, err
		}
		if report.Email.OK {
			sent++
			continue
		}
		w.logger.Warn("reminder not sent",
			"appointment_id", appt.ID,
			"skipped", report.Email.Skipped,
			"error", report.Email.Error,
		)
		if err := w.queue.MarkReminderAttempted(ctx, appt.StudioID, appt.ID, now); err != nil {
			w.logger.Warn("reminder attempt not recorded", "appointment_id", appt.ID, "err", err)
		}
	}
	return sent, nil
}
