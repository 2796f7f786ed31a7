// Package platform implements the per-platform message handlers.
package platform

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/tobyrush/chatbridge/internal/message"
)

// senderAllowed matches a sender identifier against glob patterns. An empty
// pattern list allows every sender.
func senderAllowed(patterns []string, sender message.Identifier) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, sender.String()); err == nil && ok {
			return true
		}
	}
	return false
}

// buildRequest is the context-window selection shared by the handlers: the
// configured system preamble plus the retained history, unchanged. It is
// deterministic for a given snapshot.
func buildRequest(system string, state message.ThreadState) message.ModelRequest {
	return message.ModelRequest{
		System:   system,
		Messages: state.Messages(),
	}
}
