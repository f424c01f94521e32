package payments

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/inkform/inkform/libs/db"
)

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// PostgresEventLog remembers processed provider events so webhook replays are
// acknowledged without being applied twice.
type PostgresEventLog struct {
	pool *db.Pool
}

func NewPostgresEventLog(pool *db.Pool) *PostgresEventLog {
	return &PostgresEventLog{pool: pool}
}

func (l *PostgresEventLog) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_provider_events
			WHERE provider = $1 AND provider_event_id = $2
		)
	`, provider, eventID).Scan(&seen)
	return seen, err
}

func (l *PostgresEventLog) Record(ctx context.Context, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

type MemoryEventLog struct {
	mu   sync.Mutex
	seen map[string]ProviderEvent
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: map[string]ProviderEvent{}}
}

func (l *MemoryEventLog) Seen(_ context.Context, provider, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[provider+"/"+eventID]
	return ok, nil
}

func (l *MemoryEventLog) Record(_ context.Context, evt ProviderEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := evt.Provider + "/" + evt.ProviderEventID
	if _, ok := l.seen[key]; ok {
		return ErrDuplicateProviderEvent
	}
	l.seen[key] = evt
	return nil
}
