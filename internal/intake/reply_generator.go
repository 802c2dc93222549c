package intake

import (
	"context"
	"strings"

	"github.com/gbcenter/intake-ai/pkg/logging"
)

const replyGeneratorSystemPrompt = `Eres el asistente de WhatsApp del Gastro Bariatric Center (Pachuca).
Responde breve, claro y profesional. Sin diagnósticos ni tratamientos personalizados por chat; invita a consulta.
Políticas: urgencias -> aconseja acudir a urgencias / 911. No inventes precios fuera de los que se proporcionan. Mantén tono cálido.
Datos fijos: Consulta $1200 MXN (≈90 min). Dirección: Torre Plétora Urban Center (2º piso), Pachuca.`

// ReplyGenerator produces a free-text reply when no deterministic branch
// matched. It always returns a non-empty string: backend failures map to the
// fixed fallback, never to an error.
type ReplyGenerator struct {
	llm      LLMClient
	fallback string
	logger   *logging.Logger
}

// NewReplyGenerator creates a reply generator. A nil llm means the fixed
// fallback string is always returned.
func NewReplyGenerator(llm LLMClient, fallback string, logger *logging.Logger) *ReplyGenerator {
	if strings.TrimSpace(fallback) == "" {
		fallback = defaultFallbackReply
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyGenerator{llm: llm, fallback: fallback, logger: logger}
}

// Reply generates a reply for a message that no rule handled.
func (g *ReplyGenerator) Reply(ctx context.Context, text, contactName, contactID string) string {
	if g == nil || g.llm == nil {
		return g.fallbackReply()
	}
	if contactName == "" {
		contactName = "desconocido"
	}

	resp, err := g.llm.Complete(ctx, LLMRequest{
		System:      []string{replyGeneratorSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "Nombre: " + contactName + "; Tel: " + contactID + "; Mensaje: " + text}},
		MaxTokens:   220,
		Temperature: 0.3,
	})
	if err != nil {
		g.logger.Warn("reply generator backend failed, using fixed fallback", "error", err)
		return g.fallbackReply()
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return g.fallbackReply()
	}
	return reply
}

func (g *ReplyGenerator) fallbackReply() string {
	if g == nil || g.fallback == "" {
		return defaultFallbackReply
	}
	return g.fallback
}
