package webhook

// Event is the envelope Meta posts to the WhatsApp Cloud API webhook.
type Event struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InboundText is one flattened inbound message ready for the dialogue engine.
type InboundText struct {
	ContactID   string
	ContactName string
	MessageID   string
	Text        string
}

// ParseEvent flattens the entry/changes/value nesting into inbound messages.
// Interactive replies surface their title as text; any other message type
// becomes a bracketed placeholder so the dialogue still gets a turn. Status
// updates carry no messages and produce an empty slice.
func ParseEvent(event Event) []InboundText {
	var out []InboundText
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.From == "" {
					continue
				}
				out = append(out, InboundText{
					ContactID:   m.From,
					ContactName: contactName(change.Value.Contacts, m.From),
					MessageID:   m.ID,
					Text:        messageText(m),
				})
			}
		}
	}
	return out
}

func contactName(contacts []Contact, waID string) string {
	for _, c := range contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

func messageText(m Message) string {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body
		}
	case "interactive":
		if m.Interactive != nil {
			if m.Interactive.ButtonReply != nil {
				return m.Interactive.ButtonReply.Title
			}
			if m.Interactive.ListReply != nil {
				return m.Interactive.ListReply.Title
			}
		}
	}
	return "[" + m.Type + "]"
}
