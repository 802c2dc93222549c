package messagelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation is one contact's thread summary for the staff console.
type Conversation struct {
	ContactID    string    `json:"contact_id"`
	ContactName  string    `json:"contact_name"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one logged inbound or outbound text.
type Message struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists conversation traffic in Postgres. A nil Store is a no-op so
// the webhook keeps working when no database is configured.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// LogMessage appends one message and refreshes the conversation summary in a
// single transaction.
func (s *Store) LogMessage(ctx context.Context, contactID, contactName, direction, body string) error {
	if s == nil || s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("messagelog: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (contact_id, contact_name, last_message, message_count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (contact_id) DO UPDATE SET
		    contact_name = CASE WHEN EXCLUDED.contact_name <> '' THEN EXCLUDED.contact_name ELSE conversations.contact_name END,
		    last_message = EXCLUDED.last_message,
		    message_count = conversations.message_count + 1,
		    updated_at = now()`,
		contactID, contactName, body)
	if err != nil {
		return fmt.Errorf("messagelog: upsert conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, contact_id, direction, body, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.NewString(), contactID, direction, body)
	if err != nil {
		return fmt.Errorf("messagelog: insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("messagelog: commit: %w", err)
	}
	return nil
}

// ListConversations returns thread summaries, most recently active first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	if s == nil || s.db == nil {
		return []Conversation{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT contact_id, contact_name, last_message, message_count, updated_at
		FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("messagelog: list conversations: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ContactID, &c.ContactName, &c.LastMessage, &c.MessageCount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("messagelog: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMessages returns one contact's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, contactID string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return []Message{}, nil
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, direction, body, created_at
		FROM messages WHERE contact_id = $1
		ORDER BY created_at ASC LIMIT $2`,
		contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("messagelog: list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messagelog: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
