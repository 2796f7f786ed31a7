package message

import "errors"

// Parse failures a handler can report. The pipeline treats any ParseInbound
// error as a rejected request with no state mutation.
var (
	// ErrUnsupportedEvent means the payload decoded but is not a chat
	// message this handler processes (e.g. a delivery receipt).
	ErrUnsupportedEvent = errors.New("unsupported event")

	// ErrSenderNotAllowed means the sender did not match the handler's
	// allowlist.
	ErrSenderNotAllowed = errors.New("sender not allowed")
)

// ModelRequest is the context window a model backend will see: a system
// preamble plus the retained conversation history.
type ModelRequest struct {
	System   string
	Messages []Message
}

// Handler translates between one platform's payload shape and the canonical
// model. The pipeline never branches on platform type outside a Handler.
type Handler interface {
	// ParseInbound decodes a raw platform payload into a canonical message.
	ParseInbound(raw []byte) (Message, error)

	// BuildRequest formats the context window the model backend will see.
	// Must be deterministic for a given snapshot.
	BuildRequest(state ThreadState) ModelRequest

	// RenderOutbound encodes an assistant reply as a platform payload.
	RenderOutbound(m Message) ([]byte, error)
}
