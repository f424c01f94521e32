package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrNoCredentials = errors.New("calendar credentials missing")

// GoogleConnector authenticates with a studio's service-account JSON and
// writes to its primary calendar.
type GoogleConnector struct {
	Timeout    time.Duration
	CalendarID string
}

func (c GoogleConnector) Connect(ctx context.Context, credentials string) (Provider, error) {
	if strings.TrimSpace(credentials) == "" {
		return nil, ErrNoCredentials
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON([]byte(credentials)),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, err
	}
	calendarID := c.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleProvider{events: svc.Events, calendarID: calendarID, timeout: timeout}, nil
}

type GoogleProvider struct {
	events     *gcal.EventsService
	calendarID string
	timeout    time.Duration
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, evt Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	created, err := p.events.Insert(p.calendarID, toGoogle(evt)).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func toGoogle(evt Event) *gcal.Event {
	overrides := make([]*gcal.EventReminder, 0, len(evt.Reminders))
	for _, r := range evt.Reminders {
		overrides = append(overrides, &gcal.EventReminder{Method: r.Method, Minutes: r.Minutes})
	}
	return &gcal.Event{
		Summary:     evt.Summary,
		Description: evt.Description,
		Start:       &gcal.EventDateTime{DateTime: evt.Start.Format(time.RFC3339), TimeZone: evt.TimeZone},
		End:         &gcal.EventDateTime{DateTime: evt.End.Format(time.RFC3339), TimeZone: evt.TimeZone},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides:  overrides,
			// UseDefault=false is dropped by omitempty unless forced.
			ForceSendFields: []string{"UseDefault"},
		},
	}
}
