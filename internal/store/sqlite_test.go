package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyrush/chatbridge/internal/message"
)

func setupSQLiteStore(t *testing.T, maxThreads, maxPerThread int) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(t.TempDir()+"/chat.db", maxThreads, maxPerThread)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RejectsZeroCaps(t *testing.T) {
	_, err := OpenSQLiteStore(t.TempDir()+"/chat.db", 0, 1)
	assert.Error(t, err)
	_, err = OpenSQLiteStore(t.TempDir()+"/chat.db", 1, 0)
	assert.Error(t, err)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	s := setupSQLiteStore(t, 2, 2)

	_, err := s.Get(context.Background(), message.NewThreadKey(message.ID("a"), message.ID("b")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_TinyCapsScenario(t *testing.T) {
	ctx := context.Background()
	s := setupSQLiteStore(t, 1, 1)

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

func TestSQLiteStore_OrderAndTrim(t *testing.T) {
	ctx := context.Background()
	s := setupSQLiteStore(t, 2, 3)

	sender := message.ID("alice")
	recipient := message.ID("bob")
	for i := 0; i < 5; i++ {
		state, err := s.Add(ctx, userMsg(sender, recipient, fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
		assert.LessOrEqual(t, state.Len(), 3)
	}

	state, err := s.Get(ctx, message.NewThreadKey(sender, recipient))
	require.NoError(t, err)

	var bodies []string
	for _, m := range state.Messages() {
		bodies = append(bodies, m.Payload.(message.Text).Body)
	}
	assert.Equal(t, []string{"msg-2", "msg-3", "msg-4"}, bodies)
}

func TestSQLiteStore_EvictsLeastRecentlyActive(t *testing.T) {
	ctx := context.Background()
	const k = 3
	s := setupSQLiteStore(t, k, 8)

	msgs := make([]message.Message, k)
	for i := 0; i < k; i++ {
		msgs[i] = userMsg(message.ID(fmt.Sprintf("s%d", i)), message.ID(fmt.Sprintf("r%d", i)), "hi")
		_, err := s.Add(ctx, msgs[i])
		require.NoError(t, err)
	}

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

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/chat.db"

	s, err := OpenSQLiteStore(path, 4, 8)
	require.NoError(t, err)

	m := userMsg(message.ID("alice"), message.ID("bob"), "persisted")
	_, err = s.Add(ctx, m)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(path, 4, 8)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.Get(ctx, m.ThreadKey())
	require.NoError(t, err)
	require.Equal(t, 1, state.Len())
	assert.Equal(t, m.ID, state.Messages()[0].ID)
	assert.Equal(t, message.Text{Body: "persisted"}, state.Messages()[0].Payload)
}
