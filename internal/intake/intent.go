package intake

import "regexp"

// Intent is a normalized classification of an inbound message.
type Intent string

const (
	IntentUnknown     Intent = ""
	IntentGeneralInfo Intent = "general_info"
	IntentLocation    Intent = "location"
	IntentBooking     Intent = "booking"
	IntentPricing     Intent = "pricing"
	IntentBariatric   Intent = "bariatric"
	IntentGastro      Intent = "gastro"
	IntentNotOffered  Intent = "not_offered"
	IntentHuman       Intent = "human"
)

// ---------- package-level compiled patterns ----------

// intentPatterns is the ordered rule classifier; the first match wins.
var intentPatterns = []struct {
	intent Intent
	re     *regexp.Regexp
}{
	{IntentLocation, regexp.MustCompile(`(?i)ubicaci[oó]n|direcci[oó]n|pl[eé]tora|zona plateada|d[oó]nde`)},
	{IntentBooking, regexp.MustCompile(`(?i)\bcita\b|agendar|valoraci[oó]n|horario|disponibilidad`)},
	{IntentPricing, regexp.MustCompile(`(?i)costo|precio|cu[aá]nto`)},
	{IntentBariatric, regexp.MustCompile(`(?i)manga|bypass|bal[oó]n|bari[aá]tric|obesidad`)},
	{IntentGastro, regexp.MustCompile(`(?i)ves[ií]cula|colecist|hernia|reflujo|acalasia|gastritis|colitis|apendic`)},
	{IntentNotOffered, regexp.MustCompile(`(?i)cpre|endoscop|diarrea cr[oó]nica`)},
	{IntentHuman, regexp.MustCompile(`(?i)humano|asesor|recepci[oó]n`)},
}

// Immediate-exit rules. These bypass interpretation entirely and never touch
// session state.
var (
	emergencyRE         = regexp.MustCompile(`(?i)urgencia|emergencia|sangrado|dolor intenso|fiebre alta`)
	excludedProcedureRE = regexp.MustCompile(`(?i)cpre|endoscop|diarrea cr[oó]nica`)
)

// Confirmation patterns. The deterministic resolver is the authority at the
// booking confirmation step; AI hints only fill in when these are silent.
var (
	confirmYesRE = regexp.MustCompile(`(?i)^s[ií]`)
	confirmNoRE  = regexp.MustCompile(`(?i)^no?\b`)
)

// ClassifyIntent runs the ordered rule classifier over a raw message.
func ClassifyIntent(text string) Intent {
	if text == "" {
		return IntentUnknown
	}
	for _, p := range intentPatterns {
		if p.re.MatchString(text) {
			return p.intent
		}
	}
	return IntentUnknown
}

// IsEmergency reports whether the message matches the emergency keyword rule.
func IsEmergency(text string) bool {
	return emergencyRE.MatchString(text)
}

// IsExcludedProcedure reports whether the message asks about a procedure the
// clinic does not perform.
func IsExcludedProcedure(text string) bool {
	return excludedProcedureRE.MatchString(text)
}
