package intake

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gbcenter/intake-ai/pkg/logging"
)

// FieldExtractor parses free-text clinical self-report into structured fields.
// Implementations never fail; they degrade to the deterministic result.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) ExtractedFields
}

const extractorSystemPrompt = `Eres un extractor de datos clínicos para triage bariátrico en español.
Devuelve SOLO JSON con las claves: age (entero en años o null), weight_kg (número o null), height_cm (número entero en cm o null), conditions (array de strings, puede ser []).
Acepta texto libre con medidas en "m" o "cm" y peso con o sin "kg".`

// LLMExtractor layers a language-model backend over the deterministic regex
// extractor. Backend output wins when present; the regex result fills any gap.
// The two sources never overwrite each other.
type LLMExtractor struct {
	llm    LLMClient
	logger *logging.Logger
}

// NewLLMExtractor creates a language-model-backed field extractor.
func NewLLMExtractor(llm LLMClient, logger *logging.Logger) *LLMExtractor {
	if llm == nil {
		panic("intake: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMExtractor{llm: llm, logger: logger}
}

// Extract parses the text with the backend, falling back to the deterministic
// extractor on any failure.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ExtractedFields {
	deterministic := ExtractFields(text)

	resp, err := e.llm.Complete(ctx, LLMRequest{
		System:      []string{extractorSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "Extrae del siguiente texto:\n\"\"\"" + text + "\"\"\""}},
		MaxTokens:   200,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		e.logger.Warn("extractor backend failed, using deterministic result", "error", err)
		return deterministic
	}

	content := strings.TrimSpace(resp.Text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return deterministic
	}

	var parsed ExtractedFields
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		e.logger.Warn("extractor backend returned unparsable output", "error", err)
		return deterministic
	}

	return fillGaps(sanitizeFields(parsed), deterministic)
}

// fillGaps completes nil fields in primary from secondary.
func fillGaps(primary, secondary ExtractedFields) ExtractedFields {
	if primary.Age == nil {
		primary.Age = secondary.Age
	}
	if primary.WeightKg == nil {
		primary.WeightKg = secondary.WeightKg
	}
	if primary.HeightCm == nil {
		primary.HeightCm = secondary.HeightCm
	}
	if len(primary.Conditions) == 0 {
		primary.Conditions = secondary.Conditions
	}
	return primary
}
