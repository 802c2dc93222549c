package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gbcenter/intake-ai/internal/intake"
	"github.com/gbcenter/intake-ai/internal/observability/metrics"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

// TurnProcessor runs one dialogue turn and returns the reply to send.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, msg intake.InboundMessage) (string, error)
}

// ReplySender delivers an outbound text to a contact.
type ReplySender interface {
	SendText(ctx context.Context, to, text string) error
}

// MessageLog records conversation traffic for the staff console. Optional;
// logging failures never block the dialogue.
type MessageLog interface {
	LogMessage(ctx context.Context, contactID, contactName, direction, body string) error
}

// Handler terminates the Meta webhook: GET verification challenges and POST
// message deliveries. Inbound messages run through the dialogue engine and
// the reply goes back out over the Cloud API before the handler returns.
type Handler struct {
	verifyToken string
	appSecret   string
	engine      TurnProcessor
	sender      ReplySender
	log         MessageLog
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger
}

// NewHandler creates the webhook handler. engine is required; sender, log and
// metrics are optional.
func NewHandler(verifyToken, appSecret string, engine TurnProcessor, sender ReplySender, log MessageLog, m *metrics.IntakeMetrics, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webhook: turn processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		engine:      engine,
		sender:      sender,
		log:         log,
		metrics:     m,
		logger:      logger,
	}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *Handler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook deliveries.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.observe("read_error", start)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.observe("bad_signature", start)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.observe("bad_payload", start)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries on anything but a fast 200; processing failures are ours
	// to handle, not theirs to redeliver.
	w.WriteHeader(http.StatusOK)

	for _, msg := range ParseEvent(event) {
		h.process(r.Context(), msg)
	}
	h.observe("ok", start)
}

func (h *Handler) process(ctx context.Context, msg InboundText) {
	h.logMessage(ctx, msg.ContactID, msg.ContactName, "inbound", msg.Text)

	reply, err := h.engine.ProcessTurn(ctx, intake.InboundMessage{
		ContactID:   msg.ContactID,
		ContactName: msg.ContactName,
		Text:        msg.Text,
	})
	if err != nil {
		h.logger.Error("turn processing failed", "contact_id", msg.ContactID, "error", err)
		return
	}
	if reply == "" {
		return
	}

	if h.sender == nil {
		h.logger.Warn("no sender configured, dropping reply", "contact_id", msg.ContactID)
		return
	}
	if err := h.sender.SendText(ctx, msg.ContactID, reply); err != nil {
		h.logger.Error("reply delivery failed", "contact_id", msg.ContactID, "error", err)
		return
	}

	h.logMessage(ctx, msg.ContactID, msg.ContactName, "outbound", reply)
}

func (h *Handler) logMessage(ctx context.Context, contactID, contactName, direction, body string) {
	if h.log == nil {
		return
	}
	if err := h.log.LogMessage(ctx, contactID, contactName, direction, body); err != nil {
		h.logger.Warn("message log write failed", "contact_id", contactID, "direction", direction, "error", err)
	}
}

func (h *Handler) observe(status string, start time.Time) {
	h.metrics.ObserveWebhookLatency(status, time.Since(start).Seconds())
}
