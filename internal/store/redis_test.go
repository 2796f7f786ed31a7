package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyrush/chatbridge/internal/message"
)

func setupRedisStore(t *testing.T, maxThreads, maxPerThread int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewRedisStore(client, maxThreads, maxPerThread)
	require.NoError(t, err)
	return s
}

func TestRedisStore_RejectsZeroCaps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewRedisStore(client, 0, 1)
	assert.Error(t, err)
	_, err = NewRedisStore(client, 1, 0)
	assert.Error(t, err)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	s := setupRedisStore(t, 2, 2)

	_, err := s.Get(context.Background(), message.NewThreadKey(message.ID("a"), message.ID("b")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_AddAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t, 2, 8)

	m := userMsg(message.ID("alice"), message.ID("bob"), "hello")
	state, err := s.Add(ctx, m)
	require.NoError(t, err)
	require.Equal(t, 1, state.Len())

	got := state.Messages()[0]
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Sender, got.Sender)
	assert.Equal(t, m.Recipient, got.Recipient)
	assert.Equal(t, m.Role, got.Role)
	assert.Equal(t, m.Payload, got.Payload)
	assert.True(t, m.Timestamp.Equal(got.Timestamp))
}

func TestRedisStore_TinyCapsScenario(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t, 1, 1)

	sender := message.RandomIdentifier()
	recipient := message.RandomIdentifier()

	a := userMsg(sender, recipient, "a")
	_, err := s.Add(ctx, a)
	require.NoError(t, err)
	requireSize(t, s, 1)

	b := userMsg(recipient, sender, "b")
	state, err := s.Add(ctx, b)
	require.NoError(t, err)
	requireSize(t, s, 1)
	require.Equal(t, 1, state.Len())
	assert.Equal(t, b.ID, state.Messages()[0].ID)

	c := userMsg(message.RandomIdentifier(), message.RandomIdentifier(), "c")
	state, err = s.Add(ctx, c)
	require.NoError(t, err)
	requireSize(t, s, 1)
	require.Equal(t, 1, state.Len())
	assert.Equal(t, c.ID, state.Messages()[0].ID)

	_, err = s.Get(ctx, a.ThreadKey())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TrimsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t, 2, 3)

	sender := message.ID("alice")
	recipient := message.ID("bob")
	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, userMsg(sender, recipient, fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}

	state, err := s.Get(ctx, message.NewThreadKey(sender, recipient))
	require.NoError(t, err)
	require.Equal(t, 3, state.Len())

	var bodies []string
	for _, m := range state.Messages() {
		bodies = append(bodies, m.Payload.(message.Text).Body)
	}
	assert.Equal(t, []string{"msg-2", "msg-3", "msg-4"}, bodies)
}

func TestRedisStore_EvictsLeastRecentlyActive(t *testing.T) {
	ctx := context.Background()
	const k = 3
	s := setupRedisStore(t, k, 8)

	msgs := make([]message.Message, k)
	for i := 0; i < k; i++ {
		msgs[i] = userMsg(message.ID(fmt.Sprintf("s%d", i)), message.ID(fmt.Sprintf("r%d", i)), "hi")
		_, err := s.Add(ctx, msgs[i])
		require.NoError(t, err)
	}

	// Touch c0, making c1 the stalest.
	_, err := s.Add(ctx, userMsg(msgs[0].Sender, msgs[0].Recipient, "again"))
	require.NoError(t, err)

	_, err = s.Add(ctx, userMsg(message.ID("s-new"), message.ID("r-new"), "new"))
	require.NoError(t, err)

	requireSize(t, s, k)
	_, err = s.Get(ctx, msgs[1].ThreadKey())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, msgs[0].ThreadKey())
	assert.NoError(t, err)
}
