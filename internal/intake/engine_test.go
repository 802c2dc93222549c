package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbcenter/intake-ai/internal/schedule"
)

type stubInterpreter struct{ out Interpretation }

func (s stubInterpreter) Interpret(context.Context, string, string, string) Interpretation {
	return s.out
}

type stubExtractor struct{ out ExtractedFields }

func (s stubExtractor) Extract(context.Context, string) ExtractedFields { return s.out }

type stubAvailability struct {
	slots []schedule.Slot
	err   error
	calls int
}

func (s *stubAvailability) ListFreeSlots(context.Context, schedule.Query) ([]schedule.Slot, error) {
	s.calls++
	return s.slots, s.err
}

type stubSink struct {
	err    error
	events []schedule.TentativeEvent
}

func (s *stubSink) CreateTentativeEvent(_ context.Context, ev schedule.TentativeEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type stubNotifier struct {
	err     error
	notices []BookingNotice
}

func (s *stubNotifier) NotifyBooking(_ context.Context, n BookingNotice) error {
	if s.err != nil {
		return s.err
	}
	s.notices = append(s.notices, n)
	return nil
}

type engineFixture struct {
	engine *Engine
	store  *MemorySessionStore
	avail  *stubAvailability
	sink   *stubSink
	notify *stubNotifier
}

func testSlots() []schedule.Slot {
	base := time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)
	return []schedule.Slot{
		{Start: base, Label: "mié 2 sep, 09:00"},
		{Start: base.Add(30 * time.Minute), Label: "mié 2 sep, 09:30"},
	}
}

func newEngineFixture(brain Interpreter, extractor FieldExtractor) *engineFixture {
	f := &engineFixture{
		store:  NewMemorySessionStore(),
		avail:  &stubAvailability{slots: testSlots()},
		sink:   &stubSink{},
		notify: &stubNotifier{},
	}
	f.engine = NewEngine(f.store, brain, extractor, nil, f.avail, f.sink, f.notify, nil, EngineConfig{}, nil)
	return f
}

func (f *engineFixture) session(t *testing.T, contactID string) Session {
	t.Helper()
	sess, err := f.store.Get(context.Background(), contactID)
	require.NoError(t, err)
	return sess
}

func (f *engineFixture) turn(t *testing.T, msg InboundMessage) string {
	t.Helper()
	reply, err := f.engine.ProcessTurn(context.Background(), msg)
	require.NoError(t, err)
	require.NotEmpty(t, reply)
	return reply
}

func TestProcessTurnRequiresContactID(t *testing.T) {
	f := newEngineFixture(nil, nil)
	_, err := f.engine.ProcessTurn(context.Background(), InboundMessage{Text: "hola"})
	assert.Error(t, err)
}

func TestProcessTurnEmptyMessage(t *testing.T) {
	f := newEngineFixture(nil, nil)
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "   "})
	assert.Equal(t, defaultFallbackReply, reply)
}

func TestProcessTurnEmergencyShortCircuits(t *testing.T) {
	f := newEngineFixture(nil, nil)

	// Mid-flow emergency must not disturb the session.
	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	before := f.session(t, "c1")
	require.Equal(t, FlowBooking, before.Flow)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo un sangrado fuerte"})
	assert.Equal(t, replyEmergency, reply)
	assert.Equal(t, before, f.session(t, "c1"))
}

func TestProcessTurnCannedIntents(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"location", "¿dónde están ubicados?", replyLocation},
		{"pricing", "cuánto cuesta la consulta", replyPricing},
		{"not offered", "¿hacen CPRE?", replyNotOffered},
		{"human", "quiero hablar con un asesor", replyHuman},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(nil, nil)
			reply := f.turn(t, InboundMessage{ContactID: "c1", Text: tt.text})
			assert.Equal(t, tt.want, reply)
			assert.True(t, f.session(t, "c1").Idle())
		})
	}
}

func TestProcessTurnExcludedProcedureShortCircuits(t *testing.T) {
	f := newEngineFixture(nil, nil)

	// Mid-flow excluded-procedure question must not disturb the session.
	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	before := f.session(t, "c1")
	require.Equal(t, FlowBooking, before.Flow)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "¿me pueden hacer una endoscopia?"})
	assert.Equal(t, replyNotOffered, reply)
	assert.Equal(t, before, f.session(t, "c1"))
}

func TestProcessTurnGastroEntersBooking(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo mucho reflujo"})
	assert.Equal(t, replyGastro, reply)

	sess := f.session(t, "c1")
	assert.Equal(t, FlowBooking, sess.Flow)
	assert.Equal(t, 0, sess.Step)

	// The next message is taken as the patient name and the flow continues
	// into slot listing.
	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "María Fernanda Ruiz"})
	assert.Contains(t, reply, "1)")
	assert.Equal(t, "María Fernanda Ruiz", f.session(t, "c1").Booking.PatientName)
}

func TestProcessTurnBariatricFAQ(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "¿qué es la manga gástrica?"})
	assert.Equal(t, replyFAQSleeve, reply)
	assert.True(t, f.session(t, "c1").Idle())

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "¿qué es el bypass?"})
	assert.Equal(t, replyFAQBypass, reply)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestProcessTurnFallbackFAQKeywords(t *testing.T) {
	f := newEngineFixture(nil, nil)

	// "sleeve" matches no intent pattern and lands on the keyword tier.
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "¿el sleeve es para mí?"})
	assert.Equal(t, replyFAQSleeve, reply)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestProcessTurnGeneralFallsBackToInterpreterReply(t *testing.T) {
	f := newEngineFixture(stubInterpreter{Interpretation{Intent: IntentGeneralInfo, Reply: "¡Hola! ¿En qué te ayudo?"}}, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "hola buenas tardes"})
	assert.Equal(t, "¡Hola! ¿En qué te ayudo?", reply)
}

func TestProcessTurnGeneralWithoutBackend(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "hola buenas tardes"})
	assert.Equal(t, defaultFallbackReply, reply)
}

func TestProcessTurnInvalidStoredSessionIsReset(t *testing.T) {
	f := newEngineFixture(nil, nil)
	require.NoError(t, f.store.Put(context.Background(), "c1", Session{Flow: FlowNone, Step: 3}))

	f.turn(t, InboundMessage{ContactID: "c1", Text: "hola"})

	sess := f.session(t, "c1")
	assert.True(t, sess.Valid())
	assert.True(t, sess.Idle())
}

// ---------- triage flow ----------

func TestTriageFullDialogue(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})
	assert.Equal(t, replyTriageIntro, reply)
	sess := f.session(t, "c1")
	assert.Equal(t, FlowTriage, sess.Flow)
	assert.Equal(t, 1, sess.Step)

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo 38, peso 112 kg y mido 1.68"})
	assert.Contains(t, reply, "39.7")
	assert.Contains(t, reply, "candidato")

	// Candidacy hands the dialogue straight to the booking name step with the
	// patient record preserved.
	sess = f.session(t, "c1")
	assert.Equal(t, FlowBooking, sess.Flow)
	assert.Equal(t, 0, sess.Step)
	require.NotNil(t, sess.Patient.BMI)
	assert.InDelta(t, 39.7, *sess.Patient.BMI, 0.001)

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "Carlos Mendoza"})
	assert.Contains(t, reply, "Horarios disponibles")
	assert.Equal(t, "Carlos Mendoza", f.session(t, "c1").Booking.PatientName)
}

func TestTriageCandidacyWithDisplayNameSkipsNamePrompt(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "me interesa la manga"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "tengo 38, peso 112 kg y mido 1.68"})
	assert.Contains(t, reply, "candidato")

	sess := f.session(t, "c1")
	assert.Equal(t, FlowBooking, sess.Flow)
	assert.Equal(t, "Laura Peña", sess.Booking.PatientName)

	reply = f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "sí, quiero"})
	assert.Contains(t, reply, "Horarios disponibles")
	assert.Equal(t, 1, f.session(t, "c1").Step)
}

func TestTriageCandidacyDeclinedResetsSession(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "me interesa la manga"})
	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "tengo 38, peso 112 kg y mido 1.68"})

	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Laura Peña", Text: "no por ahora"})
	assert.Equal(t, replyBookingDeclined, reply)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestTriageSingleTurnWhenEntryMessageIsComplete(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "quiero la manga, tengo 38 años, peso 112 kg y mido 1.68"})
	assert.Contains(t, reply, "39.7")
	assert.Equal(t, FlowBooking, f.session(t, "c1").Flow)
}

func TestTriageAccumulatesAcrossTurns(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo 38 años"})
	assert.Contains(t, reply, "peso y estatura")

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "peso 112 kg"})
	assert.Contains(t, reply, "estatura")

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "mido 1.68"})
	assert.Contains(t, reply, "39.7")
	assert.Equal(t, FlowBooking, f.session(t, "c1").Flow)
}

func TestTriageBelowThreshold(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "manga: tengo 30 años, peso 75 kg y mido 1.70"})
	assert.Contains(t, reply, "26.0")
	assert.Contains(t, reply, "no tienen la potencia")
	assert.True(t, f.session(t, "c1").Idle())
}

func TestTriageUncomputableBMIClearsMeasurements(t *testing.T) {
	ex := stubExtractor{ExtractedFields{Age: intPtr(40), WeightKg: floatPtr(80), HeightCm: floatPtr(0)}}
	f := newEngineFixture(nil, ex)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "quiero la manga"})
	assert.Equal(t, replyBMIRetry, reply)

	sess := f.session(t, "c1")
	assert.Equal(t, FlowTriage, sess.Flow)
	require.NotNil(t, sess.Patient.Age)
	assert.Nil(t, sess.Patient.WeightKg)
	assert.Nil(t, sess.Patient.HeightCm)
}

func TestTriageNoProgressReasksMissingFields(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "mejor luego lo platicamos"})

	assert.Contains(t, reply, "edad, peso y estatura")
	sess := f.session(t, "c1")
	assert.Equal(t, FlowTriage, sess.Flow)
	assert.Equal(t, 1, sess.Step)
}

func TestTriageCollectedFieldsSurviveClarificationTurn(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo 38 años y peso 112 kg"})

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "perdón, ¿cómo?"})
	assert.Contains(t, reply, "estatura")

	sess := f.session(t, "c1")
	assert.Equal(t, FlowTriage, sess.Flow)
	require.NotNil(t, sess.Patient.Age)
	assert.Equal(t, 38, *sess.Patient.Age)
	require.NotNil(t, sess.Patient.WeightKg)
	assert.InDelta(t, 112, *sess.Patient.WeightKg, 0.001)
}

func TestTriageRecordsConditions(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo diabetes e hipertensión, 38 años"})

	sess := f.session(t, "c1")
	assert.Equal(t, []string{"diabetes", "hipertensi"}, sess.Patient.Conditions)
}

// ---------- booking flow ----------

func TestBookingFullDialogueWithKnownName(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "María García", Text: "quiero agendar una cita"})
	assert.Contains(t, reply, "Horarios disponibles")
	assert.Contains(t, reply, "1) mié 2 sep, 09:00")
	assert.Contains(t, reply, "2) mié 2 sep, 09:30")

	sess := f.session(t, "c1")
	assert.Equal(t, FlowBooking, sess.Flow)
	assert.Equal(t, 1, sess.Step)
	assert.Equal(t, "María García", sess.Booking.PatientName)

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	assert.Equal(t, confirmSlotReply("mié 2 sep, 09:00"), reply)

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "sí"})
	assert.Equal(t, replyBookingDone, reply)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, testSlots()[0].Start, ev.Start)
	assert.Equal(t, 30, ev.DurationMinutes)
	assert.Contains(t, ev.Summary, "María García")

	require.Len(t, f.notify.notices, 1)
	assert.Equal(t, "María García", f.notify.notices[0].PatientName)
	assert.Equal(t, "mié 2 sep, 09:00", f.notify.notices[0].SlotLabel)

	assert.True(t, f.session(t, "c1").Idle())
}

func TestBookingAsksForNameWhenUnknown(t *testing.T) {
	f := newEngineFixture(nil, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "quiero agendar una cita"})
	assert.Equal(t, replyAskName, reply)
	sess := f.session(t, "c1")
	assert.Equal(t, FlowBooking, sess.Flow)
	assert.Equal(t, 0, sess.Step)

	reply = f.turn(t, InboundMessage{ContactID: "c1", Text: "Juan Pérez"})
	assert.Contains(t, reply, "Horarios disponibles")
	assert.Equal(t, "Juan Pérez", f.session(t, "c1").Booking.PatientName)
}

func TestBookingRejectsImplausibleName(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "quiero agendar una cita"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "123"})

	assert.Equal(t, replyAskName, reply)
	assert.Equal(t, 0, f.session(t, "c1").Step)
}

func TestBookingNoAvailabilityResets(t *testing.T) {
	f := newEngineFixture(nil, nil)
	f.avail.slots = nil

	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	assert.Equal(t, replyNoSlots, reply)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestBookingAvailabilityErrorResets(t *testing.T) {
	f := newEngineFixture(nil, nil)
	f.avail.err = errors.New("calendar unreachable")

	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	assert.Equal(t, replyNoSlots, reply)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestBookingSlotIndexOutOfRange(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "9"})

	assert.Equal(t, replySlotIndexRetry, reply)
	assert.Equal(t, 1, f.session(t, "c1").Step)
}

func TestBookingSlotChoiceFromInterpreterHint(t *testing.T) {
	choice := 2
	f := newEngineFixture(stubInterpreter{Interpretation{Intent: IntentGeneralInfo, SlotChoice: &choice}}, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "el segundo por favor"})

	assert.Equal(t, confirmSlotReply("mié 2 sep, 09:30"), reply)
}

func TestBookingNumericTextOutranksInterpreterHint(t *testing.T) {
	hint := 1
	f := newEngineFixture(stubInterpreter{Interpretation{Intent: IntentGeneralInfo, SlotChoice: &hint}}, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "2"})

	assert.Equal(t, confirmSlotReply("mié 2 sep, 09:30"), reply)
}

func TestBookingDeclineAtConfirmation(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "no, gracias"})

	assert.Equal(t, replyBookingDeclined, reply)
	assert.Empty(t, f.sink.events)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestBookingAmbiguousConfirmationReasks(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "mmm déjame pensarlo"})

	assert.Equal(t, confirmSlotReply("mié 2 sep, 09:00"), reply)
	assert.Equal(t, 2, f.session(t, "c1").Step)
}

func TestBookingConfirmationFromInterpreterHint(t *testing.T) {
	f := newEngineFixture(stubInterpreter{Interpretation{Intent: IntentGeneralInfo, ConfirmAppointment: "yes"}}, nil)

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "claro que quiero"})

	assert.Equal(t, replyBookingDone, reply)
	assert.Len(t, f.sink.events, 1)
}

func TestBookingSinkFailure(t *testing.T) {
	f := newEngineFixture(nil, nil)
	f.sink.err = errors.New("insert failed")

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "sí"})

	assert.Equal(t, replyBookingFailed, reply)
	assert.Empty(t, f.notify.notices)
	assert.True(t, f.session(t, "c1").Idle())
}

func TestBookingNotifierFailureDoesNotFailBooking(t *testing.T) {
	f := newEngineFixture(nil, nil)
	f.notify.err = errors.New("smtp down")

	f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quiero agendar una cita"})
	f.turn(t, InboundMessage{ContactID: "c1", Text: "1"})
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "sí"})

	assert.Equal(t, replyBookingDone, reply)
	assert.Len(t, f.sink.events, 1)
}

func TestBookingViaInterpreterWantFlag(t *testing.T) {
	f := newEngineFixture(stubInterpreter{Interpretation{Intent: IntentGeneralInfo, WantsAppointment: true}}, nil)

	reply := f.turn(t, InboundMessage{ContactID: "c1", ContactName: "Ana López", Text: "quisiera pasar a verlos pronto"})
	assert.Contains(t, reply, "Horarios disponibles")
	assert.Equal(t, FlowBooking, f.session(t, "c1").Flow)
}

func TestFlowOwnsTurnOverIntentKeywords(t *testing.T) {
	f := newEngineFixture(nil, nil)

	f.turn(t, InboundMessage{ContactID: "c1", Text: "me interesa la manga"})
	// "reflujo" is a gastro keyword but inside triage it is a condition.
	reply := f.turn(t, InboundMessage{ContactID: "c1", Text: "tengo reflujo y 38 años"})

	assert.Contains(t, reply, "peso y estatura")
	sess := f.session(t, "c1")
	assert.Equal(t, FlowTriage, sess.Flow)
	assert.Contains(t, sess.Patient.Conditions, "reflujo")
}
