package schedule

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/gbcenter/intake-ai/pkg/logging"
)

// GoogleCalendar queries availability and inserts tentative holds on a single
// clinic calendar via the Google Calendar API.
type GoogleCalendar struct {
	svc        *calendar.Service
	calendarID string
	logger     *logging.Logger
}

// NewGoogleCalendar builds a calendar client from a base64-encoded service
// account JSON key.
func NewGoogleCalendar(ctx context.Context, serviceAccountB64, calendarID string, logger *logging.Logger) (*GoogleCalendar, error) {
	if strings.TrimSpace(serviceAccountB64) == "" {
		return nil, errors.New("schedule: service account key is required")
	}
	if strings.TrimSpace(calendarID) == "" {
		return nil, errors.New("schedule: calendar id is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	key, err := base64.StdEncoding.DecodeString(serviceAccountB64)
	if err != nil {
		return nil, fmt.Errorf("schedule: failed to decode service account key: %w", err)
	}

	svc, err := calendar.NewService(ctx,
		option.WithCredentialsJSON(key),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule: failed to create calendar service: %w", err)
	}

	return &GoogleCalendar{svc: svc, calendarID: calendarID, logger: logger}, nil
}

// ListFreeSlots enumerates slot-aligned candidates over the query window and
// removes any that overlap busy intervals on the clinic calendar.
func (g *GoogleCalendar) ListFreeSlots(ctx context.Context, q Query) ([]Slot, error) {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: unknown timezone %q: %w", q.Timezone, err)
	}

	now := time.Now().In(loc)
	candidates, err := EnumerateCandidates(now, q, loc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	busy, err := g.busyIntervals(ctx, now, now.AddDate(0, 0, q.LookaheadDays), q.Timezone)
	if err != nil {
		return nil, err
	}

	free := RemoveBusy(candidates, q.SlotMinutes, busy)
	return BuildSlots(free, q.MaxSlots), nil
}

func (g *GoogleCalendar) busyIntervals(ctx context.Context, from, to time.Time, tz string) ([]BusyInterval, error) {
	resp, err := g.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: tz,
		Items:    []*calendar.FreeBusyRequestItem{{Id: g.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("schedule: freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, nil
	}

	intervals := make([]BusyInterval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, startErr := time.Parse(time.RFC3339, b.Start)
		end, endErr := time.Parse(time.RFC3339, b.End)
		if startErr != nil || endErr != nil {
			g.logger.Warn("skipping unparsable busy interval", "start", b.Start, "end", b.End)
			continue
		}
		intervals = append(intervals, BusyInterval{Start: start, End: end})
	}
	return intervals, nil
}

// CreateTentativeEvent inserts a tentative hold on the clinic calendar. The
// event is never marked confirmed; staff confirm out-of-band.
func (g *GoogleCalendar) CreateTentativeEvent(ctx context.Context, ev TentativeEvent) error {
	end := ev.Start.Add(time.Duration(ev.DurationMinutes) * time.Minute)

	_, err := g.svc.Events.Insert(g.calendarID, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Status:      "tentative",
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("schedule: failed to insert tentative event: %w", err)
	}
	return nil
}
