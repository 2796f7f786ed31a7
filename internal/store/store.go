// Package store provides bounded, ordered conversation storage behind a
// single contract with in-memory, Redis, and SQLite implementations.
package store

import (
	"context"
	"errors"

	"github.com/tobyrush/chatbridge/internal/message"
)

// ChatStore is ordered, capacity-bounded conversation storage.
//
// Add calls for distinct conversation keys are safe to run concurrently;
// calls for the same key are linearized by the implementation. Snapshots
// returned by Add and Get are immutable: later mutations never show through
// a previously returned ThreadState.
type ChatStore interface {
	// Add inserts the message into the conversation derived from its
	// sender/recipient pair, evicting as needed to maintain bounds, and
	// returns the resulting snapshot. Eviction is normal operation, never
	// an error; the in-memory implementation cannot fail on valid input.
	Add(ctx context.Context, m message.Message) (message.ThreadState, error)

	// Get returns a read-only snapshot, or ErrNotFound.
	Get(ctx context.Context, key message.ThreadKey) (message.ThreadState, error)

	// Size returns the number of distinct retained conversations.
	Size(ctx context.Context) (int, error)
}

// ErrNotFound is returned by Get when the conversation is not retained.
var ErrNotFound = errors.New("conversation not found")

// validateCaps checks the two capacity bounds shared by all variants. A
// store that can hold nothing would break the Add contract, which must
// return a snapshot containing at least the just-added message.
func validateCaps(maxThreads, maxMessagesPerThread int) error {
	if maxThreads < 1 {
		return errors.New("maxThreads must be at least 1")
	}
	if maxMessagesPerThread < 1 {
		return errors.New("maxMessagesPerThread must be at least 1")
	}
	return nil
}
