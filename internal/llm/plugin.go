// Package llm defines the model backend contract and its typed failures.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tobyrush/chatbridge/internal/message"
)

// Plugin is a model backend. Respond is pure from the pipeline's
// perspective: it never touches conversation state, and any internal
// retry policy toward the backend is the plugin's own concern. Respond
// must honor the context deadline.
type Plugin interface {
	Respond(ctx context.Context, req message.ModelRequest) (message.Payload, error)
}

// ErrorKind classifies recoverable model backend failures.
type ErrorKind string

const (
	// KindTimeout covers deadline expiry and cancellation.
	KindTimeout ErrorKind = "timeout"
	// KindRejected covers backend refusals and transport failures.
	KindRejected ErrorKind = "rejected"
	// KindMalformed covers replies the plugin could not use.
	KindMalformed ErrorKind = "malformed"
)

// ModelError is a typed, recoverable-by-caller backend failure.
type ModelError struct {
	Kind ErrorKind
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model error (%s)", e.Kind)
	}
	return fmt.Sprintf("model error (%s): %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Errorf builds a ModelError of the given kind wrapping err.
func Errorf(kind ErrorKind, err error) *ModelError {
	return &ModelError{Kind: kind, Err: err}
}

// AsModelError unwraps err to a ModelError if there is one in the chain.
func AsModelError(err error) (*ModelError, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// classify maps a backend call failure into the taxonomy, giving context
// expiry precedence over whatever the transport reported.
func classify(ctx context.Context, err error) *ModelError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Errorf(KindTimeout, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Errorf(KindTimeout, err)
	}
	return Errorf(KindRejected, err)
}

// historyText flattens a payload into the text form sent to a backend.
func historyText(p message.Payload) string {
	switch v := p.(type) {
	case message.Text:
		return v.Body
	case message.Media:
		return fmt.Sprintf("[attachment %s: %s]", v.MIME, v.URL)
	default:
		return ""
	}
}
