package store

import (
	"context"
	"sync"

	"github.com/tobyrush/chatbridge/internal/message"
	"github.com/tobyrush/chatbridge/internal/metrics"
)

// MemoryStore is the in-memory ChatStore with dual-resource bounded
// eviction: at most maxThreads distinct conversations, at most
// maxMessagesPerThread messages each.
//
// A single coarse mutex guards the whole structure. Eviction spans the whole
// key space, so per-key locking would not make the eviction step atomic with
// the insertion it protects.
type MemoryStore struct {
	mu         sync.Mutex
	threads    map[message.ThreadKey]*thread
	maxThreads int
	maxPerThr  int

	// seq totally orders all mutations, so "most recently active" never
	// ties. It also serves as the creation-order tie-break.
	seq uint64
}

type thread struct {
	created    uint64
	lastActive uint64
	messages   []message.Message
}

// NewMemoryStore creates a bounded in-memory store. Both capacities must be
// at least 1.
func NewMemoryStore(maxThreads, maxMessagesPerThread int) (*MemoryStore, error) {
	if err := validateCaps(maxThreads, maxMessagesPerThread); err != nil {
		return nil, err
	}
	return &MemoryStore{
		threads:    make(map[message.ThreadKey]*thread),
		maxThreads: maxThreads,
		maxPerThr:  maxMessagesPerThread,
	}, nil
}

// Add inserts m into its conversation, evicting the least-recently-active
// conversation if the store is at its conversation cap, then trimming the
// thread front to the per-thread cap. Returns the post-insertion snapshot.
func (s *MemoryStore) Add(ctx context.Context, m message.Message) (message.ThreadState, error) {
	key := m.ThreadKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[key]
	if !ok {
		if len(s.threads) >= s.maxThreads {
			s.evictStalest()
		}
		s.seq++
		t = &thread{created: s.seq}
		s.threads[key] = t
	}

	t.messages = append(t.messages, m)
	if len(t.messages) > s.maxPerThr {
		// Drop oldest first, into a fresh backing array so evicted
		// messages become collectable.
		trimmed := make([]message.Message, s.maxPerThr)
		copy(trimmed, t.messages[len(t.messages)-s.maxPerThr:])
		t.messages = trimmed
	}
	s.seq++
	t.lastActive = s.seq

	return message.NewThreadState(key, t.messages), nil
}

// Get returns a snapshot of the conversation, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key message.ThreadKey) (message.ThreadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[key]
	if !ok {
		return message.ThreadState{}, ErrNotFound
	}
	return message.NewThreadState(key, t.messages), nil
}

// Size returns the number of retained conversations.
func (s *MemoryStore) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads), nil
}

// evictStalest removes the conversation whose most recent message is oldest,
// ties broken by earliest creation. Caller holds the mutex.
func (s *MemoryStore) evictStalest() {
	var victim message.ThreadKey
	found := false
	for key, t := range s.threads {
		if !found {
			victim, found = key, true
			continue
		}
		v := s.threads[victim]
		if t.lastActive < v.lastActive ||
			(t.lastActive == v.lastActive && t.created < v.created) {
			victim = key
		}
	}
	if found {
		delete(s.threads, victim)
		metrics.ThreadEvictionsTotal.WithLabelValues("memory").Inc()
	}
}
