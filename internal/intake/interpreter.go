package intake

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gbcenter/intake-ai/pkg/logging"
)

// Interpretation is the normalized result of understanding one inbound
// message. Produced and consumed within a single turn.
type Interpretation struct {
	Reply              string
	Intent             Intent
	Entities           ExtractedFields
	WantsAppointment   bool
	ConfirmAppointment string // "yes", "no" or ""
	SlotChoice         *int   // 1-based index into the presented slot list
}

// DefaultInterpretation is the safe degradation when no backend is available
// or a backend misbehaves.
func DefaultInterpretation() Interpretation {
	return Interpretation{Intent: IntentGeneralInfo}
}

// Interpreter converts a raw inbound message into a normalized interpretation.
// Implementations must never fail; they degrade to DefaultInterpretation.
type Interpreter interface {
	Interpret(ctx context.Context, text, contactName, contactID string) Interpretation
}

const brainSystemPrompt = `Eres el asistente de WhatsApp del Gastro Bariatric Center (Pachuca).
Responde breve, claro y cálido, sin diagnósticos personalizados por chat.
Precios fijos: consulta de valoración $1200 MXN (~90 min). Cirugía: manga desde $70,000; bypass desde $85,000 (se confirma en consulta).
Dirección: Torre Plétora Urban Center (2º piso), Pachuca.
Si detectas datos de triage (edad/peso/estatura/enfermedades), extráelos.
Si el usuario parece querer cita, indícalo.
Devuelve SOLO JSON con esta forma:
{
  "reply": "texto de respuesta",
  "intent": "one of: general_info | location | prices | bariatric_triage | book_appointment | other_gi | not_offered | human",
  "entities": { "age": number|null, "weight_kg": number|null, "height_cm": number|null, "diseases": string[] },
  "want_appointment": boolean,
  "confirm_appointment": "yes"|"no"|null,
  "slot_choice_index": number|null
}`

// brainIntentNames maps the backend's intent vocabulary onto ours.
var brainIntentNames = map[string]Intent{
	"general_info":     IntentGeneralInfo,
	"location":         IntentLocation,
	"prices":           IntentPricing,
	"bariatric_triage": IntentBariatric,
	"book_appointment": IntentBooking,
	"other_gi":         IntentGastro,
	"not_offered":      IntentNotOffered,
	"human":            IntentHuman,
}

// Brain is the language-model-backed Interpreter. Any backend failure or
// unparsable output degrades to the safe default; callers re-validate every
// AI-proposed value, so a misbehaving backend cannot corrupt dialogue state.
type Brain struct {
	llm    LLMClient
	logger *logging.Logger
}

// NewBrain creates a language-model-backed interpreter.
func NewBrain(llm LLMClient, logger *logging.Logger) *Brain {
	if llm == nil {
		panic("intake: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Brain{llm: llm, logger: logger}
}

type brainResponse struct {
	Reply    string `json:"reply"`
	Intent   string `json:"intent"`
	Entities struct {
		Age      *int     `json:"age"`
		WeightKg *float64 `json:"weight_kg"`
		HeightCm *float64 `json:"height_cm"`
		Diseases []string `json:"diseases"`
	} `json:"entities"`
	WantAppointment    bool    `json:"want_appointment"`
	ConfirmAppointment *string `json:"confirm_appointment"`
	SlotChoiceIndex    *int    `json:"slot_choice_index"`
}

// Interpret asks the backend for a structured reading of the message.
func (b *Brain) Interpret(ctx context.Context, text, contactName, contactID string) Interpretation {
	if contactName == "" {
		contactName = "desconocido"
	}
	user := "Paciente: " + contactName + " (" + contactID + ")\nMensaje: \"\"\"" + text + "\"\"\""

	resp, err := b.llm.Complete(ctx, LLMRequest{
		System:      []string{brainSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   400,
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		b.logger.Warn("interpreter backend failed, using safe default", "error", err)
		return DefaultInterpretation()
	}

	parsed, ok := parseBrainResponse(resp.Text)
	if !ok {
		b.logger.Warn("interpreter backend returned unparsable output")
		return DefaultInterpretation()
	}
	return parsed
}

// parseBrainResponse decodes and sanitizes a backend reply. The backend may
// wrap the JSON object in extra prose.
func parseBrainResponse(raw string) (Interpretation, bool) {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Interpretation{}, false
	}

	var br brainResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &br); err != nil {
		return Interpretation{}, false
	}

	out := Interpretation{
		Reply:            strings.TrimSpace(br.Reply),
		Intent:           IntentGeneralInfo,
		WantsAppointment: br.WantAppointment,
	}
	if intent, ok := brainIntentNames[br.Intent]; ok {
		out.Intent = intent
	}
	out.Entities = sanitizeFields(ExtractedFields{
		Age:        br.Entities.Age,
		WeightKg:   br.Entities.WeightKg,
		HeightCm:   br.Entities.HeightCm,
		Conditions: br.Entities.Diseases,
	})
	if br.ConfirmAppointment != nil {
		switch strings.ToLower(strings.TrimSpace(*br.ConfirmAppointment)) {
		case "yes":
			out.ConfirmAppointment = "yes"
		case "no":
			out.ConfirmAppointment = "no"
		}
	}
	if br.SlotChoiceIndex != nil && *br.SlotChoiceIndex >= 1 {
		idx := *br.SlotChoiceIndex
		out.SlotChoice = &idx
	}
	return out, true
}

// sanitizeFields drops non-positive numeric values so a hallucinating backend
// cannot plant an unusable zero that blocks the triage merge.
func sanitizeFields(f ExtractedFields) ExtractedFields {
	if f.Age != nil && *f.Age <= 0 {
		f.Age = nil
	}
	if f.WeightKg != nil && *f.WeightKg <= 0 {
		f.WeightKg = nil
	}
	if f.HeightCm != nil && *f.HeightCm <= 0 {
		f.HeightCm = nil
	}
	return f
}
