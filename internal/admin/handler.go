package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gbcenter/intake-ai/internal/messagelog"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

// ConversationStore gives the staff console read access to logged traffic.
type ConversationStore interface {
	ListConversations(ctx context.Context) ([]messagelog.Conversation, error)
	ListMessages(ctx context.Context, contactID string, limit int) ([]messagelog.Message, error)
}

// MessageSender delivers a manual outbound text to a contact.
type MessageSender interface {
	SendText(ctx context.Context, to, text string) error
}

// MessageLogger records a manually sent message alongside the bot traffic.
type MessageLogger interface {
	LogMessage(ctx context.Context, contactID, contactName, direction, body string) error
}

// Handler exposes the staff console API: conversation listing, per-contact
// history and manual replies.
type Handler struct {
	store  ConversationStore
	sender MessageSender
	log    MessageLogger
	logger *logging.Logger
}

// NewHandler creates the admin API handler. store is required; sender and log
// are optional (manual sends fail with 503 when no sender is wired).
func NewHandler(store ConversationStore, sender MessageSender, log MessageLogger, logger *logging.Logger) *Handler {
	if store == nil {
		panic("admin: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, sender: sender, log: log, logger: logger}
}

// ListConversations handles GET /api/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("conversation listing failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// ListMessages handles GET /api/messages?contact_id=...&limit=...
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(r.URL.Query().Get("contact_id"))
	if contactID == "" {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(r.Context(), contactID, limit)
	if err != nil {
		h.logger.Error("message listing failed", "contact_id", contactID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contact_id": contactID, "messages": messages})
}

type sendRequest struct {
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
}

// SendMessage handles POST /api/send: a staff member answering by hand.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.ContactID = strings.TrimSpace(req.ContactID)
	req.Text = strings.TrimSpace(req.Text)
	if req.ContactID == "" || req.Text == "" {
		http.Error(w, "contact_id and text are required", http.StatusBadRequest)
		return
	}

	if h.sender == nil {
		http.Error(w, "no sender configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.sender.SendText(r.Context(), req.ContactID, req.Text); err != nil {
		h.logger.Error("manual send failed", "contact_id", req.ContactID, "error", err)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}

	if h.log != nil {
		if err := h.log.LogMessage(r.Context(), req.ContactID, "", messagelog.DirectionOutbound, req.Text); err != nil {
			h.logger.Warn("manual send log failed", "contact_id", req.ContactID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
