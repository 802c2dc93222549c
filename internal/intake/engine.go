package intake

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gbcenter/intake-ai/internal/observability/metrics"
	"github.com/gbcenter/intake-ai/internal/schedule"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

// InboundMessage is one patient message as delivered by the channel webhook.
type InboundMessage struct {
	ContactID   string
	ContactName string
	Text        string
}

// AvailabilityService lists bookable slots for the clinic calendar.
type AvailabilityService interface {
	ListFreeSlots(ctx context.Context, q schedule.Query) ([]schedule.Slot, error)
}

// BookingSink records a confirmed slot choice as a tentative calendar hold.
type BookingSink interface {
	CreateTentativeEvent(ctx context.Context, ev schedule.TentativeEvent) error
}

// BookingNotice summarizes a freshly placed tentative booking for staff.
type BookingNotice struct {
	PatientName string
	ContactID   string
	SlotLabel   string
	SlotStart   time.Time
}

// BookingNotifier tells clinic staff about a new tentative booking. Delivery
// is best-effort; a failed notification never fails the booking.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, n BookingNotice) error
}

// EngineConfig carries the scheduling policy and external-call budget for one
// engine instance.
type EngineConfig struct {
	Timezone        string
	LookaheadDays   int
	SlotMinutes     int
	WorkStart       string
	WorkEnd         string
	MaxSlots        int
	ExternalTimeout time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Timezone == "" {
		c.Timezone = "America/Mexico_City"
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = 14
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 30
	}
	if c.WorkStart == "" {
		c.WorkStart = "09:00"
	}
	if c.WorkEnd == "" {
		c.WorkEnd = "18:00"
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = 6
	}
	if c.ExternalTimeout <= 0 {
		c.ExternalTimeout = 10 * time.Second
	}
	return c
}

// ---------- deterministic turn-level patterns ----------

var (
	slotIndexRE = regexp.MustCompile(`\b([1-9]\d?)\b`)
	// faqQuestionRE distinguishes "¿qué es la manga?" from "quiero la manga".
	faqQuestionRE = regexp.MustCompile(`(?i)qu[eé] es|c[oó]mo funciona|en qu[eé] consiste`)
	sleeveRE      = regexp.MustCompile(`(?i)manga|sleeve`)
	bypassRE      = regexp.MustCompile(`(?i)bypass`)
	// patientNameRE accepts a plausible full name: letters, spaces and common
	// name punctuation, at least three runes.
	patientNameRE = regexp.MustCompile(`^[\p{L}][\p{L} .'-]{2,}$`)
)

// Engine runs the per-contact dialogue state machine: intent routing, the
// triage slot-filling sub-dialogue and the three-step booking sub-dialogue.
// Turns for the same contact are serialized; every external failure degrades
// to a canned reply or a session reset, never to a user-visible error.
type Engine struct {
	sessions     SessionStore
	brain        Interpreter
	extractor    FieldExtractor
	replies      *ReplyGenerator
	availability AvailabilityService
	sink         BookingSink
	notifier     BookingNotifier
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
	cfg          EngineConfig
	locks        *contactLocks
	tracer       trace.Tracer
}

// NewEngine wires the dialogue engine. sessions is required; every other
// collaborator may be nil and degrades to its safe behavior (no AI, regex-only
// extraction, no availability, fixed fallback replies).
func NewEngine(
	sessions SessionStore,
	brain Interpreter,
	extractor FieldExtractor,
	replies *ReplyGenerator,
	availability AvailabilityService,
	sink BookingSink,
	notifier BookingNotifier,
	m *metrics.IntakeMetrics,
	cfg EngineConfig,
	logger *logging.Logger,
) *Engine {
	if sessions == nil {
		panic("intake: session store cannot be nil")
	}
	if extractor == nil {
		extractor = RegexExtractor{}
	}
	if replies == nil {
		replies = NewReplyGenerator(nil, "", logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		sessions:     sessions,
		brain:        brain,
		extractor:    extractor,
		replies:      replies,
		availability: availability,
		sink:         sink,
		notifier:     notifier,
		metrics:      m,
		logger:       logger,
		cfg:          cfg.withDefaults(),
		locks:        newContactLocks(),
		tracer:       otel.Tracer("intake/engine"),
	}
}

// ProcessTurn handles one inbound message and returns the reply to send. The
// per-contact lock is held for the whole turn, so concurrent deliveries for
// the same contact observe a consistent session.
func (e *Engine) ProcessTurn(ctx context.Context, msg InboundMessage) (string, error) {
	if strings.TrimSpace(msg.ContactID) == "" {
		return "", errors.New("intake: contact id is required")
	}

	ctx, span := e.tracer.Start(ctx, "intake.process_turn",
		trace.WithAttributes(attribute.String("intake.contact_id", msg.ContactID)))
	defer span.End()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return e.replies.fallbackReply(), nil
	}

	// Emergencies and excluded procedures short-circuit everything and never
	// touch session state.
	if IsEmergency(text) {
		e.metrics.ObserveTurn(string(FlowNone), "emergency")
		return replyEmergency, nil
	}
	if IsExcludedProcedure(text) {
		e.metrics.ObserveTurn(string(FlowNone), string(IntentNotOffered))
		return replyNotOffered, nil
	}

	unlock := e.locks.Lock(msg.ContactID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, msg.ContactID)
	if err != nil {
		e.logger.Warn("session load failed, starting from idle", "contact_id", msg.ContactID, "error", err)
		sess = Session{}
	}
	if !sess.Valid() {
		e.logger.Warn("session failed invariant check, resetting", "contact_id", msg.ContactID, "flow", string(sess.Flow), "step", sess.Step)
		sess.Reset()
	}

	interp := e.interpret(ctx, text, msg.ContactName, msg.ContactID)
	flowBefore := sess.Flow
	if flowBefore == "" {
		flowBefore = FlowNone
	}

	var reply string
	switch {
	case sess.Flow == FlowTriage:
		reply = e.triageTurn(ctx, &sess, msg, text, interp)
	case sess.Flow == FlowBooking:
		reply = e.bookingTurn(ctx, &sess, msg, text, interp)
	default:
		reply = e.routeIdle(ctx, &sess, msg, text, interp)
	}

	if err := e.sessions.Put(ctx, msg.ContactID, sess); err != nil {
		e.logger.Warn("session save failed", "contact_id", msg.ContactID, "error", err)
	}

	e.metrics.ObserveTurn(string(flowBefore), string(interp.Intent))
	span.SetAttributes(
		attribute.String("intake.flow", string(sess.Flow)),
		attribute.Int("intake.step", sess.Step),
	)
	return reply, nil
}

// interpret runs the AI interpreter under the external-call budget. Every
// value it proposes is re-validated by the deterministic resolvers before use.
func (e *Engine) interpret(ctx context.Context, text, contactName, contactID string) Interpretation {
	if e.brain == nil {
		return DefaultInterpretation()
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()
	return e.brain.Interpret(callCtx, text, contactName, contactID)
}

// ---------- idle routing ----------

func (e *Engine) routeIdle(ctx context.Context, sess *Session, msg InboundMessage, text string, interp Interpretation) string {
	intent := ClassifyIntent(text)
	if intent == IntentUnknown {
		intent = interp.Intent
	}

	switch intent {
	case IntentLocation:
		return replyLocation
	case IntentPricing:
		return replyPricing
	case IntentNotOffered:
		return replyNotOffered
	case IntentHuman:
		return replyHuman
	case IntentGastro:
		// Direct offer to book, skipping triage. The next message lands on
		// the booking name step.
		*sess = Session{Flow: FlowBooking}
		return replyGastro
	case IntentBariatric:
		if faqQuestionRE.MatchString(text) {
			if bypassRE.MatchString(text) {
				return replyFAQBypass
			}
			if sleeveRE.MatchString(text) {
				return replyFAQSleeve
			}
		}
		return e.startTriage(ctx, sess, msg, text, interp)
	case IntentBooking:
		return e.startBooking(ctx, sess, msg)
	}

	if interp.WantsAppointment {
		return e.startBooking(ctx, sess, msg)
	}

	// Mini-FAQ keyword tier ahead of the general reply generator.
	if bypassRE.MatchString(text) {
		return replyFAQBypass
	}
	if sleeveRE.MatchString(text) {
		return replyFAQSleeve
	}

	if interp.Reply != "" {
		return interp.Reply
	}
	return e.replies.Reply(ctx, text, msg.ContactName, msg.ContactID)
}

// ---------- triage sub-dialogue ----------

// startTriage opens the slot-filling sub-dialogue. Fields already present in
// the entry message count immediately, so a fully self-described patient gets
// a verdict in one turn.
func (e *Engine) startTriage(ctx context.Context, sess *Session, msg InboundMessage, text string, interp Interpretation) string {
	*sess = Session{Flow: FlowTriage, Step: 1}

	fields := e.extractFields(ctx, text, interp)
	mergePatient(&sess.Patient, fields)
	if missing := missingPatientFields(sess.Patient); len(missing) > 0 {
		if sess.Patient.Empty() {
			return replyTriageIntro
		}
		return missingFieldsReply(missing)
	}
	return e.triageVerdict(sess, msg, interp)
}

func (e *Engine) triageTurn(ctx context.Context, sess *Session, msg InboundMessage, text string, interp Interpretation) string {
	if sess.Step == 0 {
		// Should not happen; re-prompt and move onto the collecting step.
		sess.Step = 1
		return replyTriageIntro
	}

	fields := e.extractFields(ctx, text, interp)
	mergePatient(&sess.Patient, fields)

	// Even a turn that contributed nothing keeps the collected record and
	// re-prompts for what is still missing.
	if missing := missingPatientFields(sess.Patient); len(missing) > 0 {
		return missingFieldsReply(missing)
	}
	return e.triageVerdict(sess, msg, interp)
}

// triageVerdict computes the BMI verdict and closes the sub-dialogue. An
// uncomputable BMI clears the offending measurements and re-asks instead of
// deadlocking on first-value-wins merging. A surgical candidate moves straight
// into the booking flow; below the threshold the session goes idle unless the
// patient asked for an appointment anyway.
func (e *Engine) triageVerdict(sess *Session, msg InboundMessage, interp Interpretation) string {
	bmi := BMI(*sess.Patient.WeightKg, *sess.Patient.HeightCm)
	if bmi == nil {
		sess.Patient.WeightKg = nil
		sess.Patient.HeightCm = nil
		return replyBMIRetry
	}
	sess.Patient.BMI = bmi

	if *bmi >= 30 {
		e.enterBookingFromTriage(sess, msg)
		return candidacyReply(*bmi)
	}
	verdict := nonSurgicalReply(*bmi)
	if interp.WantsAppointment {
		e.enterBookingFromTriage(sess, msg)
		return verdict
	}
	sess.Reset()
	return verdict
}

// enterBookingFromTriage carries the collected patient record into booking
// step 0. A plausible display name pre-fills the name step so the next turn
// goes straight to the slot list.
func (e *Engine) enterBookingFromTriage(sess *Session, msg InboundMessage) {
	sess.Flow = FlowBooking
	sess.Step = 0
	sess.Booking = BookingData{}
	if name := strings.TrimSpace(msg.ContactName); patientNameRE.MatchString(name) {
		sess.Booking.PatientName = name
	}
}

// extractFields merges the deterministic extraction with the AI entity hints.
// Deterministic values win; AI fills gaps only.
func (e *Engine) extractFields(ctx context.Context, text string, interp Interpretation) ExtractedFields {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()
	return fillGaps(e.extractor.Extract(callCtx, text), interp.Entities)
}

// mergePatient fills nil session fields from a turn's extraction. Values a
// patient already gave are never overwritten.
func mergePatient(p *PatientData, f ExtractedFields) {
	if p.Age == nil {
		p.Age = f.Age
	}
	if p.WeightKg == nil {
		p.WeightKg = f.WeightKg
	}
	if p.HeightCm == nil {
		p.HeightCm = f.HeightCm
	}
	for _, c := range f.Conditions {
		if !containsString(p.Conditions, c) {
			p.Conditions = append(p.Conditions, c)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func missingPatientFields(p PatientData) []string {
	var missing []string
	if p.Age == nil {
		missing = append(missing, fieldNameAge)
	}
	if p.WeightKg == nil {
		missing = append(missing, fieldNameWeight)
	}
	if p.HeightCm == nil {
		missing = append(missing, fieldNameHeight)
	}
	return missing
}

// ---------- booking sub-dialogue ----------

// startBooking opens the booking sub-dialogue. When the channel already gave
// us a display name the name step completes in the same turn and the slot
// list goes out immediately.
func (e *Engine) startBooking(ctx context.Context, sess *Session, msg InboundMessage) string {
	*sess = Session{Flow: FlowBooking}

	name := strings.TrimSpace(msg.ContactName)
	if !patientNameRE.MatchString(name) {
		return replyAskName
	}
	sess.Booking.PatientName = name
	return e.presentSlots(ctx, sess)
}

func (e *Engine) bookingTurn(ctx context.Context, sess *Session, msg InboundMessage, text string, interp Interpretation) string {
	switch sess.Step {
	case 0:
		if sess.Booking.PatientName != "" {
			// Name pre-filled (triage handoff); this turn decides whether to
			// proceed to the slot list.
			if confirmNoRE.MatchString(text) {
				sess.Reset()
				return replyBookingDeclined
			}
			return e.presentSlots(ctx, sess)
		}
		if !patientNameRE.MatchString(text) || slotIndexRE.MatchString(text) {
			return replyAskName
		}
		sess.Booking.PatientName = text
		return e.presentSlots(ctx, sess)
	case 1:
		return e.chooseSlot(sess, text, interp)
	default:
		return e.confirmSlot(ctx, sess, msg, text, interp)
	}
}

// presentSlots fetches availability and advances to the choice step. No
// availability, an empty window or a backend failure all end the flow with an
// apology instead of leaving the patient stuck.
func (e *Engine) presentSlots(ctx context.Context, sess *Session) string {
	if e.availability == nil {
		sess.Reset()
		return replyNoSlots
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()

	slots, err := e.availability.ListFreeSlots(callCtx, schedule.Query{
		LookaheadDays: e.cfg.LookaheadDays,
		Timezone:      e.cfg.Timezone,
		SlotMinutes:   e.cfg.SlotMinutes,
		WorkStart:     e.cfg.WorkStart,
		WorkEnd:       e.cfg.WorkEnd,
		MaxSlots:      e.cfg.MaxSlots,
	})
	if err != nil {
		e.logger.Error("availability lookup failed", "error", err)
		sess.Reset()
		return replyNoSlots
	}
	if len(slots) == 0 {
		sess.Reset()
		return replyNoSlots
	}

	sess.Booking.Slots = slots
	sess.Step = 1
	return slotListReply(slots)
}

// chooseSlot resolves the patient's pick. The deterministic integer parse is
// authoritative; the AI hint only counts when the message has no number at
// all. Either way the index is bounds-checked against the presented list.
func (e *Engine) chooseSlot(sess *Session, text string, interp Interpretation) string {
	idx := 0
	if m := slotIndexRE.FindStringSubmatch(text); m != nil {
		idx, _ = strconv.Atoi(m[1])
	} else if interp.SlotChoice != nil {
		idx = *interp.SlotChoice
	}

	if idx < 1 || idx > len(sess.Booking.Slots) {
		return replySlotIndexRetry
	}

	chosen := sess.Booking.Slots[idx-1]
	sess.Booking.Chosen = &chosen
	sess.Step = 2
	return confirmSlotReply(chosen.Label)
}

// confirmSlot resolves the yes/no answer and, on yes, places the tentative
// hold. The regex resolver is authoritative; the AI hint fills in only when
// the regex is silent on both.
func (e *Engine) confirmSlot(ctx context.Context, sess *Session, msg InboundMessage, text string, interp Interpretation) string {
	if sess.Booking.Chosen == nil {
		sess.Reset()
		return replyNoSlots
	}

	yes := confirmYesRE.MatchString(text)
	no := !yes && confirmNoRE.MatchString(text)
	if !yes && !no {
		switch interp.ConfirmAppointment {
		case "yes":
			yes = true
		case "no":
			no = true
		}
	}

	switch {
	case yes:
		return e.placeBooking(ctx, sess, msg)
	case no:
		sess.Reset()
		return replyBookingDeclined
	default:
		return confirmSlotReply(sess.Booking.Chosen.Label)
	}
}

func (e *Engine) placeBooking(ctx context.Context, sess *Session, msg InboundMessage) string {
	chosen := *sess.Booking.Chosen
	name := sess.Booking.PatientName
	summary, description := bookingSummary(name)

	if e.sink == nil {
		e.metrics.ObserveBooking("failed")
		sess.Reset()
		return replyBookingFailed
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()

	err := e.sink.CreateTentativeEvent(callCtx, schedule.TentativeEvent{
		Start:           chosen.Start,
		DurationMinutes: e.cfg.SlotMinutes,
		Summary:         summary,
		Description:     description,
	})
	if err != nil {
		e.logger.Error("tentative event creation failed", "contact_id", msg.ContactID, "error", err)
		e.metrics.ObserveBooking("failed")
		sess.Reset()
		return replyBookingFailed
	}

	if e.notifier != nil {
		if nerr := e.notifier.NotifyBooking(ctx, BookingNotice{
			PatientName: name,
			ContactID:   msg.ContactID,
			SlotLabel:   chosen.Label,
			SlotStart:   chosen.Start,
		}); nerr != nil {
			e.logger.Warn("booking notification failed", "contact_id", msg.ContactID, "error", nerr)
		}
	}

	e.metrics.ObserveBooking("created")
	sess.Reset()
	return replyBookingDone
}
