package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tobyrush/chatbridge/internal/message"
	"github.com/tobyrush/chatbridge/internal/metrics"
)

// RedisStore is a Redis-backed ChatStore with the same dual-resource bounds
// as MemoryStore. Each conversation is a Redis list of JSON-encoded messages;
// a sorted set indexes conversations by a monotonically increasing activity
// sequence so eviction pops the least-recently-active member.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxThreads int
	maxPerThr  int
}

// NewRedisStore creates a Redis-backed store on an existing client. Both
// capacities must be at least 1.
func NewRedisStore(client *redis.Client, maxThreads, maxMessagesPerThread int) (*RedisStore, error) {
	if err := validateCaps(maxThreads, maxMessagesPerThread); err != nil {
		return nil, err
	}
	return &RedisStore{
		client:     client,
		prefix:     "chatbridge",
		maxThreads: maxThreads,
		maxPerThr:  maxMessagesPerThread,
	}, nil
}

// OpenRedisStore connects to redisURL and verifies the connection.
func OpenRedisStore(ctx context.Context, redisURL string, maxThreads, maxMessagesPerThread int) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, maxThreads, maxMessagesPerThread)
}

func (s *RedisStore) threadKey(key message.ThreadKey) string {
	return s.prefix + ":thread:" + key.String()
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":threads"
}

func (s *RedisStore) seqKey() string {
	return s.prefix + ":seq"
}

// Add appends m to its conversation list, trims the list to the per-thread
// cap, bumps the activity index, and evicts the stalest conversations while
// the index exceeds the conversation cap.
func (s *RedisStore) Add(ctx context.Context, m message.Message) (message.ThreadState, error) {
	key := m.ThreadKey()
	data, err := json.Marshal(m)
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to encode message: %w", err)
	}

	// The INCR gives every mutation a unique, totally ordered activity
	// score, so eviction order never ties.
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to advance sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.threadKey(key), data)
	pipe.LTrim(ctx, s.threadKey(key), int64(-s.maxPerThr), -1)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(seq), Member: key.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to append message: %w", err)
	}

	if err := s.evictOverCap(ctx); err != nil {
		return message.ThreadState{}, err
	}

	return s.snapshot(ctx, key)
}

// Get returns a snapshot of the conversation, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key message.ThreadKey) (message.ThreadState, error) {
	return s.snapshot(ctx, key)
}

// Size returns the number of retained conversations.
func (s *RedisStore) Size(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the backing connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the backing connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) evictOverCap(ctx context.Context) error {
	for {
		n, err := s.client.ZCard(ctx, s.indexKey()).Result()
		if err != nil {
			return fmt.Errorf("failed to count conversations: %w", err)
		}
		if int(n) <= s.maxThreads {
			return nil
		}
		victims, err := s.client.ZPopMin(ctx, s.indexKey(), 1).Result()
		if err != nil {
			return fmt.Errorf("failed to evict conversation: %w", err)
		}
		for _, v := range victims {
			member, _ := v.Member.(string)
			if err := s.client.Del(ctx, s.prefix+":thread:"+member).Err(); err != nil {
				return fmt.Errorf("failed to drop evicted conversation: %w", err)
			}
			metrics.ThreadEvictionsTotal.WithLabelValues("redis").Inc()
		}
	}
}

func (s *RedisStore) snapshot(ctx context.Context, key message.ThreadKey) (message.ThreadState, error) {
	raw, err := s.client.LRange(ctx, s.threadKey(key), 0, -1).Result()
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	if len(raw) == 0 {
		return message.ThreadState{}, ErrNotFound
	}

	msgs := make([]message.Message, 0, len(raw))
	for _, item := range raw {
		var m message.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return message.ThreadState{}, fmt.Errorf("failed to decode stored message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return message.NewThreadState(key, msgs), nil
}
