package intake

import (
	"math"

	"github.com/gbcenter/intake-ai/internal/schedule"
)

// Flow identifies which sub-dialogue currently owns the turn.
type Flow string

const (
	FlowNone    Flow = "none"
	FlowTriage  Flow = "triage"
	FlowBooking Flow = "booking"
)

// PatientData is the partially-filled triage record. Nil fields are unknown.
type PatientData struct {
	Age        *int     `json:"age,omitempty"`
	WeightKg   *float64 `json:"weight_kg,omitempty"`
	HeightCm   *float64 `json:"height_cm,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	BMI        *float64 `json:"bmi,omitempty"`
}

// Empty reports whether no triage data has been captured yet.
func (p PatientData) Empty() bool {
	return p.Age == nil && p.WeightKg == nil && p.HeightCm == nil &&
		len(p.Conditions) == 0 && p.BMI == nil
}

// BookingData holds the in-flight appointment request.
type BookingData struct {
	PatientName string          `json:"patient_name,omitempty"`
	Slots       []schedule.Slot `json:"slots,omitempty"`
	Chosen      *schedule.Slot  `json:"chosen,omitempty"`
}

// Empty reports whether no booking data has been captured yet.
func (b BookingData) Empty() bool {
	return b.PatientName == "" && len(b.Slots) == 0 && b.Chosen == nil
}

// Session is the per-contact dialogue state. The zero value is a valid idle
// session.
type Session struct {
	Flow    Flow        `json:"flow,omitempty"`
	Step    int         `json:"step,omitempty"`
	Patient PatientData `json:"patient,omitempty"`
	Booking BookingData `json:"booking,omitempty"`
}

// Idle reports whether no sub-dialogue owns the turn.
func (s Session) Idle() bool {
	return s.Flow == "" || s.Flow == FlowNone
}

// Reset returns the session to idle, clearing all partial data.
func (s *Session) Reset() {
	*s = Session{Flow: FlowNone}
}

// Valid checks the session invariant: an idle session carries no step cursor
// and no partial data, and a chosen slot only exists at the confirmation step.
func (s Session) Valid() bool {
	if s.Idle() {
		return s.Step == 0 && s.Patient.Empty() && s.Booking.Empty()
	}
	if s.Booking.Chosen != nil && !(s.Flow == FlowBooking && s.Step >= 2) {
		return false
	}
	return true
}

// BMI computes the body mass index rounded to one decimal place. Returns nil
// when height is zero or negative.
func BMI(weightKg, heightCm float64) *float64 {
	if heightCm <= 0 {
		return nil
	}
	h := heightCm / 100
	v := math.Round(weightKg/(h*h)*10) / 10
	return &v
}
