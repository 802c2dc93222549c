package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com/v19.0"
	defaultHTTPTimeout  = 10 * time.Second

	// maxTextRunes is the WhatsApp Cloud API limit for a text body.
	maxTextRunes = 4096
)

// Sender delivers replies through the WhatsApp Cloud API.
type Sender struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewSender creates a Cloud API sender for one business phone number.
func NewSender(token, phoneNumberID string) (*Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("webhook: access token is required")
	}
	if strings.TrimSpace(phoneNumberID) == "" {
		return nil, errors.New("webhook: phone number id is required")
	}
	return &Sender{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       defaultGraphBaseURL,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

// SetBaseURL overrides the Graph API base URL (useful for testing).
func (s *Sender) SetBaseURL(base string) {
	s.baseURL = strings.TrimRight(base, "/")
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message, truncating bodies past the Cloud API
// limit rather than failing the whole delivery.
func (s *Sender) SendText(ctx context.Context, to, text string) error {
	if runes := []rune(text); len(runes) > maxTextRunes {
		text = string(runes[:maxTextRunes])
	}

	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: text},
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("webhook: read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != nil {
		return fmt.Errorf("webhook: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
