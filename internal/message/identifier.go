// Package message defines the canonical conversation data model shared by
// stores, handlers, and model plugins.
package message

import "github.com/google/uuid"

// Identifier is an opaque identity for a platform participant or message.
// Two identifiers are the same participant iff their underlying values are
// equal; no ordering semantics beyond that.
type Identifier string

// RandomIdentifier generates a fresh unique identifier.
func RandomIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

// ID derives an identifier from a platform-supplied string.
func ID(s string) Identifier {
	return Identifier(s)
}

// String returns the underlying value.
func (id Identifier) String() string {
	return string(id)
}
