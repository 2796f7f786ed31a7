package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/tobyrush/chatbridge/internal/message"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIPlugin answers model requests via the OpenAI chat completions API.
type OpenAIPlugin struct {
	model  llms.Model
	name   string
	logger *slog.Logger
}

// NewOpenAIPlugin creates a plugin bound to one model.
func NewOpenAIPlugin(apiKey, model string, logger *slog.Logger) (*OpenAIPlugin, error) {
	if model == "" {
		model = DefaultOpenAIModel
	}
	client, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &OpenAIPlugin{model: client, name: model, logger: logger}, nil
}

// Respond sends the request's history to the backend and returns the first
// choice as a payload.
func (p *OpenAIPlugin) Respond(ctx context.Context, req message.ModelRequest) (message.Payload, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case message.RoleUser:
			content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, historyText(m.Payload)))
		case message.RoleAssistant:
			content = append(content, llms.TextParts(schema.ChatMessageTypeAI, historyText(m.Payload)))
		}
	}

	resp, err := p.model.GenerateContent(ctx, content)
	if err != nil {
		p.logger.Warn("openai call failed", "model", p.name, "error", err)
		return nil, classify(ctx, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, Errorf(KindMalformed, errors.New("reply contains no choices"))
	}
	return message.Text{Body: resp.Choices[0].Content}, nil
}
