package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var spanishDays = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}

var spanishMonths = [...]string{
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

// FormatSlotLabel renders a slot start for patient-facing slot lists,
// e.g. "mié 3 sep, 09:30".
func FormatSlotLabel(t time.Time) string {
	return fmt.Sprintf("%s %d %s, %02d:%02d",
		spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Hour(), t.Minute())
}

// parseWallClock parses "HH:MM" into hour and minute components.
func parseWallClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule: invalid wall clock %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule: invalid wall clock %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule: invalid wall clock %q", s)
	}
	return hour, minute, nil
}

// EnumerateCandidates lists every slot-aligned instant from now through the
// lookahead window, restricted to each day's working hours in loc. Instants
// already in the past are discarded.
func EnumerateCandidates(now time.Time, q Query, loc *time.Location) ([]time.Time, error) {
	startHour, startMin, err := parseWallClock(q.WorkStart)
	if err != nil {
		return nil, err
	}
	endHour, endMin, err := parseWallClock(q.WorkEnd)
	if err != nil {
		return nil, err
	}
	if q.SlotMinutes <= 0 {
		return nil, fmt.Errorf("schedule: slot minutes must be positive, got %d", q.SlotMinutes)
	}

	step := time.Duration(q.SlotMinutes) * time.Minute
	local := now.In(loc)

	var candidates []time.Time
	for day := 0; day <= q.LookaheadDays; day++ {
		date := local.AddDate(0, 0, day)
		open := time.Date(date.Year(), date.Month(), date.Day(), startHour, startMin, 0, 0, loc)
		close := time.Date(date.Year(), date.Month(), date.Day(), endHour, endMin, 0, 0, loc)
		for t := open; t.Before(close); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			candidates = append(candidates, t)
		}
	}
	return candidates, nil
}

// RemoveBusy drops every candidate whose [start, start+slotMinutes) interval
// overlaps a busy interval.
func RemoveBusy(candidates []time.Time, slotMinutes int, busy []BusyInterval) []time.Time {
	if len(busy) == 0 {
		return candidates
	}
	width := time.Duration(slotMinutes) * time.Minute
	free := candidates[:0:0]
	for _, start := range candidates {
		end := start.Add(width)
		overlaps := false
		for _, b := range busy {
			if start.Before(b.End) && end.After(b.Start) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			free = append(free, start)
		}
	}
	return free
}

// BuildSlots labels the first max candidates, soonest-first.
func BuildSlots(candidates []time.Time, max int) []Slot {
	if max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	slots := make([]Slot, 0, len(candidates))
	for _, t := range candidates {
		slots = append(slots, Slot{Start: t, Label: FormatSlotLabel(t)})
	}
	return slots
}
