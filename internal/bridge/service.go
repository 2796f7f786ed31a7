// Package bridge ties store, handler, and model plugin into the per-turn
// pipeline and hosts the pipelines behind one webhook listener.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobyrush/chatbridge/internal/llm"
	"github.com/tobyrush/chatbridge/internal/message"
	"github.com/tobyrush/chatbridge/internal/metrics"
	"github.com/tobyrush/chatbridge/internal/store"
)

var (
	// ErrInvalidPayload marks a turn rejected before any state mutation.
	ErrInvalidPayload = errors.New("invalid inbound payload")

	// ErrModelUnavailable marks a turn whose inbound message was recorded
	// but produced no reply. Retry policy belongs to the caller.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrNoRoute marks a request that matched no service.
	ErrNoRoute = errors.New("no service for route")
)

// Service is one configured pipeline: a bound store, handler, plugin, and
// webhook route.
//
// Concurrent turns for the same conversation do not serialize the handler or
// plugin work; only the store writes interleave, in arrival order at the
// store. That is sufficient for history correctness, but a reply never
// reflects a message that arrived after the request that produced it.
type Service struct {
	route        string
	store        store.ChatStore
	handler      message.Handler
	plugin       llm.Plugin
	modelTimeout time.Duration
	logger       *slog.Logger
}

// NewService binds a pipeline to its collaborators. modelTimeout bounds the
// plugin call per turn; zero means no deadline beyond the caller's.
func NewService(route string, cs store.ChatStore, h message.Handler, p llm.Plugin, modelTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		route:        route,
		store:        cs,
		handler:      h,
		plugin:       p,
		modelTimeout: modelTimeout,
		logger:       logger,
	}
}

// Route returns the webhook path this service owns.
func (s *Service) Route() string {
	return s.route
}

// HandleInbound runs one full turn: parse, record, ask the model, record the
// reply, render. A parse failure mutates nothing. A model failure (including
// deadline expiry) leaves the inbound message recorded and appends nothing;
// history is append-only, so a cancelled turn simply never produces a reply.
func (s *Service) HandleInbound(ctx context.Context, raw []byte) ([]byte, error) {
	started := time.Now()
	out, err := s.handleInbound(ctx, raw)
	metrics.TurnDuration.WithLabelValues(s.route).Observe(time.Since(started).Seconds())
	metrics.TurnsTotal.WithLabelValues(s.route, turnStatus(err)).Inc()
	return out, err
}

func (s *Service) handleInbound(ctx context.Context, raw []byte) ([]byte, error) {
	m, err := s.handler.ParseInbound(raw)
	if err != nil {
		s.logger.Debug("rejected inbound payload", "route", s.route, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	state, err := s.store.Add(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to record inbound message: %w", err)
	}

	req := s.handler.BuildRequest(state)

	mctx := ctx
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, s.modelTimeout)
		defer cancel()
	}

	payload, err := s.plugin.Respond(mctx, req)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(s.route, modelStatus(err)).Inc()
		s.logger.Warn("model call failed", "route", s.route, "thread", m.ThreadKey().String(), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	metrics.ModelRequestsTotal.WithLabelValues(s.route, "ok").Inc()

	reply := message.NewMessage(time.Now(), payload, m.Recipient, m.Sender, message.RoleAssistant)
	if _, err := s.store.Add(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to record assistant message: %w", err)
	}

	out, err := s.handler.RenderOutbound(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to render outbound payload: %w", err)
	}
	return out, nil
}

func turnStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrModelUnavailable):
		return "model_error"
	default:
		return "store_error"
	}
}

func modelStatus(err error) string {
	if me, ok := llm.AsModelError(err); ok {
		return string(me.Kind)
	}
	return string(llm.KindRejected)
}
