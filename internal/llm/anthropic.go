package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tobyrush/chatbridge/internal/message"
)

const (
	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	// anthropicMaxTokens caps reply length.
	anthropicMaxTokens = 4096
)

// AnthropicPlugin answers model requests via the Anthropic Messages API.
type AnthropicPlugin struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

// NewAnthropicPlugin creates a plugin bound to one model.
func NewAnthropicPlugin(apiKey, model string, logger *slog.Logger) *AnthropicPlugin {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicPlugin{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}
}

// Respond sends the request's history to the backend and returns the reply
// text as a payload.
func (p *AnthropicPlugin) Respond(ctx context.Context, req message.ModelRequest) (message.Payload, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  anthropicHistory(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Warn("anthropic call failed", "model", p.model, "error", err)
		return nil, classify(ctx, err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, Errorf(KindMalformed, errors.New("reply contains no text content"))
	}
	return message.Text{Body: text}, nil
}

// anthropicHistory maps canonical history into API message params. System
// turns live in the request preamble, not the history.
func anthropicHistory(msgs []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var role anthropic.MessageParamRole
		switch m.Role {
		case message.RoleUser:
			role = anthropic.MessageParamRoleUser
		case message.RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}
		out = append(out, anthropic.MessageParam{
			Role: role,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(historyText(m.Payload)),
			},
		})
	}
	return out
}

// extractText concatenates the text blocks of a reply.
func extractText(msg *anthropic.Message) string {
	var text string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		}
	}
	return text
}
