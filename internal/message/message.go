package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Payload is the content of one message. Implementations are immutable
// values; Text and Media are the supported variants.
type Payload interface {
	isPayload()
}

// Text is a plain text payload.
type Text struct {
	Body string
}

func (Text) isPayload() {}

// Media is a reference to an attachment hosted by the platform.
type Media struct {
	MIME string
	URL  string
}

func (Media) isPayload() {}

// Message is one immutable conversation turn. Construct it and never mutate;
// stores and snapshots rely on value semantics.
type Message struct {
	ID        Identifier
	Timestamp time.Time
	Payload   Payload
	Sender    Identifier
	Recipient Identifier
	Role      Role
}

// NewMessage builds a message with a fresh instance identifier.
func NewMessage(ts time.Time, p Payload, sender, recipient Identifier, role Role) Message {
	return Message{
		ID:        RandomIdentifier(),
		Timestamp: ts,
		Payload:   p,
		Sender:    sender,
		Recipient: recipient,
		Role:      role,
	}
}

// ThreadKey returns the conversation key this message belongs to.
func (m Message) ThreadKey() ThreadKey {
	return NewThreadKey(m.Sender, m.Recipient)
}

// Wire representation used by persistent store variants.
type payloadJSON struct {
	Type string `json:"type"`
	Body string `json:"body,omitempty"`
	MIME string `json:"mime,omitempty"`
	URL  string `json:"url,omitempty"`
}

type messageJSON struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Role      Role        `json:"role"`
	Payload   payloadJSON `json:"payload"`
}

// MarshalJSON encodes the message including its payload variant tag.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageJSON{
		ID:        m.ID.String(),
		Timestamp: m.Timestamp,
		Sender:    m.Sender.String(),
		Recipient: m.Recipient.String(),
		Role:      m.Role,
	}
	switch p := m.Payload.(type) {
	case Text:
		w.Payload = payloadJSON{Type: "text", Body: p.Body}
	case Media:
		w.Payload = payloadJSON{Type: "media", MIME: p.MIME, URL: p.URL}
	default:
		return nil, fmt.Errorf("unknown payload type %T", m.Payload)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a message encoded by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Message{
		ID:        ID(w.ID),
		Timestamp: w.Timestamp,
		Sender:    ID(w.Sender),
		Recipient: ID(w.Recipient),
		Role:      w.Role,
	}
	switch w.Payload.Type {
	case "text":
		out.Payload = Text{Body: w.Payload.Body}
	case "media":
		out.Payload = Media{MIME: w.Payload.MIME, URL: w.Payload.URL}
	default:
		return fmt.Errorf("unknown payload type %q", w.Payload.Type)
	}
	*m = out
	return nil
}
