package platform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/tobyrush/chatbridge/internal/message"
)

// SlackHandler translates Slack Events API callback payloads to and from the
// canonical model. The conversation pair is {user, channel}: every message a
// user sends in a channel lands in the same thread regardless of direction.
type SlackHandler struct {
	systemPrompt string
	allowFrom    []string
}

// NewSlackHandler creates a handler with an optional system preamble and
// optional sender allowlist glob patterns.
func NewSlackHandler(systemPrompt string, allowFrom []string) *SlackHandler {
	return &SlackHandler{systemPrompt: systemPrompt, allowFrom: allowFrom}
}

// ParseInbound decodes an Events API callback carrying a user message or an
// app mention. Bot echoes and edits are unsupported events.
func (h *SlackHandler) ParseInbound(raw []byte) (message.Message, error) {
	evt, err := slackevents.ParseEvent(json.RawMessage(raw), slackevents.OptionNoVerifyToken())
	if err != nil {
		return message.Message{}, fmt.Errorf("malformed slack payload: %w", err)
	}
	if evt.Type != slackevents.CallbackEvent {
		return message.Message{}, fmt.Errorf("%w: slack event type %q", message.ErrUnsupportedEvent, evt.Type)
	}

	var user, channel, text, eventTS string
	switch inner := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" {
			return message.Message{}, fmt.Errorf("%w: bot or edited message", message.ErrUnsupportedEvent)
		}
		user, channel, text, eventTS = inner.User, inner.Channel, inner.Text, inner.TimeStamp
	case *slackevents.AppMentionEvent:
		user, channel, text, eventTS = inner.User, inner.Channel, inner.Text, inner.TimeStamp
	default:
		return message.Message{}, fmt.Errorf("%w: slack inner event %T", message.ErrUnsupportedEvent, inner)
	}

	if user == "" || channel == "" {
		return message.Message{}, fmt.Errorf("slack event missing participants")
	}
	sender := message.ID(user)
	if !senderAllowed(h.allowFrom, sender) {
		return message.Message{}, fmt.Errorf("%w: %s", message.ErrSenderNotAllowed, sender)
	}

	return message.Message{
		ID:        message.RandomIdentifier(),
		Timestamp: slackTimestamp(eventTS),
		Payload:   message.Text{Body: text},
		Sender:    sender,
		Recipient: message.ID(channel),
		Role:      message.RoleUser,
	}, nil
}

// BuildRequest formats the context window for the model backend.
func (h *SlackHandler) BuildRequest(state message.ThreadState) message.ModelRequest {
	return buildRequest(h.systemPrompt, state)
}

// RenderOutbound encodes an assistant reply as a chat.postMessage-shaped
// payload for the delivery collaborator.
func (h *SlackHandler) RenderOutbound(m message.Message) ([]byte, error) {
	text, ok := m.Payload.(message.Text)
	if !ok {
		return nil, fmt.Errorf("slack outbound supports text payloads only, got %T", m.Payload)
	}
	// The assistant message's recipient is the original user; its sender is
	// the channel the turn happened in.
	return json.Marshal(slack.Msg{
		Channel: m.Sender.String(),
		Text:    text.Body,
	})
}

// slackTimestamp parses Slack's "seconds.fraction" event timestamps, falling
// back to now. Arrival order at the store is authoritative either way.
func slackTimestamp(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || n == 0 {
		return time.Now()
	}
	return time.Unix(n, 0)
}
