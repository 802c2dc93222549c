package schedule

import "time"

// Slot is a single bookable appointment start time. Immutable once produced.
type Slot struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
}

// Query describes a slot search window and working-hours policy.
type Query struct {
	LookaheadDays int
	Timezone      string
	SlotMinutes   int
	WorkStart     string // "HH:MM" wall clock
	WorkEnd       string // "HH:MM" wall clock, exclusive
	MaxSlots      int
}

// TentativeEvent describes a calendar hold awaiting human confirmation.
type TentativeEvent struct {
	Start           time.Time
	DurationMinutes int
	Summary         string
	Description     string
}

// BusyInterval is a half-open [Start, End) interval already taken on the calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}
