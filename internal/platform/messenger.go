package platform

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tobyrush/chatbridge/internal/message"
)

// MessengerHandler translates Meta-messenger-shaped webhook payloads to and
// from the canonical model.
type MessengerHandler struct {
	systemPrompt string
	allowFrom    []string
}

// NewMessengerHandler creates a handler with an optional system preamble and
// optional sender allowlist glob patterns.
func NewMessengerHandler(systemPrompt string, allowFrom []string) *MessengerHandler {
	return &MessengerHandler{systemPrompt: systemPrompt, allowFrom: allowFrom}
}

// Inbound webhook shape: object/entry/messaging with sender, recipient and
// either text or attachments.
type messengerWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messengerEvent `json:"messaging"`
	} `json:"entry"`
}

type messengerEvent struct {
	Sender    messengerParticipant `json:"sender"`
	Recipient messengerParticipant `json:"recipient"`
	Timestamp int64                `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}

type messengerParticipant struct {
	ID string `json:"id"`
}

// ParseInbound decodes the first message event in the webhook delivery.
func (h *MessengerHandler) ParseInbound(raw []byte) (message.Message, error) {
	var hook messengerWebhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		return message.Message{}, fmt.Errorf("malformed messenger payload: %w", err)
	}
	if hook.Object != "page" {
		return message.Message{}, fmt.Errorf("%w: object %q", message.ErrUnsupportedEvent, hook.Object)
	}

	for _, entry := range hook.Entry {
		for _, evt := range entry.Messaging {
			if evt.Message == nil {
				continue
			}
			if evt.Sender.ID == "" || evt.Recipient.ID == "" {
				return message.Message{}, fmt.Errorf("messenger event missing participants")
			}
			sender := message.ID(evt.Sender.ID)
			if !senderAllowed(h.allowFrom, sender) {
				return message.Message{}, fmt.Errorf("%w: %s", message.ErrSenderNotAllowed, sender)
			}

			var payload message.Payload
			switch {
			case evt.Message.Text != "":
				payload = message.Text{Body: evt.Message.Text}
			case len(evt.Message.Attachments) > 0:
				att := evt.Message.Attachments[0]
				payload = message.Media{MIME: att.Type, URL: att.Payload.URL}
			default:
				continue
			}

			ts := time.UnixMilli(evt.Timestamp)
			if evt.Timestamp == 0 {
				ts = time.Now()
			}
			m := message.Message{
				ID:        message.ID(evt.Message.MID),
				Timestamp: ts,
				Payload:   payload,
				Sender:    sender,
				Recipient: message.ID(evt.Recipient.ID),
				Role:      message.RoleUser,
			}
			if m.ID == "" {
				m.ID = message.RandomIdentifier()
			}
			return m, nil
		}
	}
	return message.Message{}, fmt.Errorf("%w: no message event in delivery", message.ErrUnsupportedEvent)
}

// BuildRequest formats the context window for the model backend.
func (h *MessengerHandler) BuildRequest(state message.ThreadState) message.ModelRequest {
	return buildRequest(h.systemPrompt, state)
}

// RenderOutbound encodes an assistant reply as a Send API payload.
func (h *MessengerHandler) RenderOutbound(m message.Message) ([]byte, error) {
	text, ok := m.Payload.(message.Text)
	if !ok {
		return nil, fmt.Errorf("messenger outbound supports text payloads only, got %T", m.Payload)
	}
	out := struct {
		Recipient     messengerParticipant `json:"recipient"`
		MessagingType string               `json:"messaging_type"`
		Message       struct {
			Text string `json:"text"`
		} `json:"message"`
	}{
		Recipient:     messengerParticipant{ID: m.Recipient.String()},
		MessagingType: "RESPONSE",
	}
	out.Message.Text = text.Body
	return json.Marshal(out)
}
