package sessionstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_ThreadBinding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateThread(ctx, "thread-1", "physics"))

	assetID, err := store.AssetForThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "physics", assetID)
}

func TestSQLiteStore_AssetForUnknownThread(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AssetForThread(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrUnknownThread)
}

func TestSQLiteStore_HistoryPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateThread(ctx, "thread-1", "physics"))
	for i := 0; i < 5; i++ {
		err := store.AppendTurn(ctx, "thread-1", entities.ChatTurn{
			UserMessage: fmt.Sprintf("question %d", i),
			BotResponse: fmt.Sprintf("answer %d", i),
		})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("question %d", i), turn.UserMessage)
		assert.Equal(t, fmt.Sprintf("answer %d", i), turn.BotResponse)
	}
}

func TestSQLiteStore_HistoryIsolatedPerThread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateThread(ctx, "t1", "physics"))
	require.NoError(t, store.CreateThread(ctx, "t2", "physics"))
	require.NoError(t, store.AppendTurn(ctx, "t1", entities.ChatTurn{UserMessage: "q1", BotResponse: "a1"}))
	require.NoError(t, store.AppendTurn(ctx, "t2", entities.ChatTurn{UserMessage: "q2", BotResponse: "a2"}))

	h1, err := store.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, h1, 1)
	assert.Equal(t, "q1", h1[0].UserMessage)
}

func TestSQLiteStore_HistoryUnknownThreadIsEmpty(t *testing.T) {
	store := newTestStore(t)

	history, err := store.History(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat_data.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateThread(ctx, "t1", "physics"))
	require.NoError(t, store.AppendTurn(ctx, "t1", entities.ChatTurn{UserMessage: "q", BotResponse: "a"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	assetID, err := reopened.AssetForThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "physics", assetID)

	history, err := reopened.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "q", history[0].UserMessage)
}
