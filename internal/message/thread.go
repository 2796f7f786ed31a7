package message

// ThreadKey identifies one conversation: the unordered pair of its two
// participants. The pair is canonicalized so {A,B} and {B,A} compare equal
// and can be used directly as a map key.
type ThreadKey struct {
	lo, hi Identifier
}

// NewThreadKey canonicalizes two participant identifiers into a key.
func NewThreadKey(a, b Identifier) ThreadKey {
	if b < a {
		a, b = b, a
	}
	return ThreadKey{lo: a, hi: b}
}

// String returns a stable textual form, usable as an external storage key.
func (k ThreadKey) String() string {
	return k.lo.String() + "|" + k.hi.String()
}

// ThreadState is an immutable snapshot of one conversation's message history
// at a point in store history. Later store mutations never show through a
// snapshot already returned to a caller.
type ThreadState struct {
	key      ThreadKey
	messages []Message
}

// NewThreadState copies msgs into a snapshot for key.
func NewThreadState(key ThreadKey, msgs []Message) ThreadState {
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	return ThreadState{key: key, messages: cp}
}

// Key returns the conversation key this snapshot belongs to.
func (t ThreadState) Key() ThreadKey {
	return t.key
}

// Messages returns the ordered history. The returned slice is a copy; the
// caller may keep or modify it freely.
func (t ThreadState) Messages() []Message {
	cp := make([]Message, len(t.messages))
	copy(cp, t.messages)
	return cp
}

// Len returns the number of messages in the snapshot.
func (t ThreadState) Len() int {
	return len(t.messages)
}
