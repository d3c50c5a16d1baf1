package queue_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/queue"
)

func TestMemoryStore(t *testing.T) {
	store := queue.NewMemoryStore()
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "queue.db")
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := queue.NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func testStoreOperations(t *testing.T, store queue.Store) {
	ctx := context.Background()

	t.Run("enqueue assigns identity", func(t *testing.T) {
		item := &models.QueuedItem{
			Type:    models.ItemTransaction,
			Payload: []byte(`{"transaction_id":"tx-1"}`),
		}

		err := store.Enqueue(ctx, item)
		require.NoError(t, err)

		assert.NotEmpty(t, item.ID)
		assert.False(t, item.EnqueuedAt.IsZero())

		count, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		err := store.Enqueue(ctx, &models.QueuedItem{Type: models.ItemReturn})
		assert.ErrorIs(t, err, queue.ErrEmptyPayload)
	})

	t.Run("fifo order", func(t *testing.T) {
		base := time.Now().UTC().Add(time.Minute)
		for i := 0; i < 3; i++ {
			err := store.Enqueue(ctx, &models.QueuedItem{
				ID:         fmt.Sprintf("fifo-%d", i),
				Type:       models.ItemAdjustment,
				Payload:    []byte(`{}`),
				EnqueuedAt: base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		items, err := store.Items(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(items), 3)

		// The minute offset puts these after everything enqueued above.
		tail := items[len(items)-3:]
		assert.Equal(t, "fifo-0", tail[0].ID)
		assert.Equal(t, "fifo-1", tail[1].ID)
		assert.Equal(t, "fifo-2", tail[2].ID)
	})

	t.Run("drain commits each verdict", func(t *testing.T) {
		verdicts := map[string]models.ProcessResult{
			"fifo-0": models.Success(),
			"fifo-1": models.Retry("server unavailable"),
			"fifo-2": models.Abandon("payload rejected"),
		}

		synced, err := store.Drain(ctx, func(ctx context.Context, item *models.QueuedItem) models.ProcessResult {
			if result, ok := verdicts[item.ID]; ok {
				return result
			}
			return models.Success()
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, synced, 1)

		items, err := store.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1, "only the retried item should remain")

		assert.Equal(t, "fifo-1", items[0].ID)
		assert.Equal(t, 1, items[0].Attempts)
		assert.Equal(t, "server unavailable", items[0].LastError)
	})

	t.Run("retry accumulates attempts", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := store.Drain(ctx, func(ctx context.Context, item *models.QueuedItem) models.ProcessResult {
				return models.Retry("still down")
			})
			require.NoError(t, err)
		}

		items, err := store.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 3, items[0].Attempts)
		assert.Equal(t, "still down", items[0].LastError)
	})

	t.Run("drain counts successes only", func(t *testing.T) {
		synced, err := store.Drain(ctx, func(ctx context.Context, item *models.QueuedItem) models.ProcessResult {
			return models.Success()
		})
		require.NoError(t, err)
		assert.Equal(t, 1, synced)

		count, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("drain respects cancellation", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			err := store.Enqueue(ctx, &models.QueuedItem{
				Type:    models.ItemClockEvent,
				Payload: []byte(`{}`),
			})
			require.NoError(t, err)
		}

		cancelCtx, cancel := context.WithCancel(ctx)
		handled := 0
		_, err := store.Drain(cancelCtx, func(ctx context.Context, item *models.QueuedItem) models.ProcessResult {
			handled++
			cancel()
			return models.Success()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, handled, "cancellation should stop before the next item")

		// Committed verdict for the first item must survive the abort.
		count, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestSQLiteStoreDurability(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "queue.db")
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	ctx := context.Background()

	store, err := queue.NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)

	item := &models.QueuedItem{
		Type:    models.ItemTransaction,
		Payload: []byte(`{"transaction_id":"tx-durable","total":4200}`),
	}
	require.NoError(t, store.Enqueue(ctx, item))

	// Mark one failed delivery before the restart.
	_, err = store.Drain(ctx, func(ctx context.Context, i *models.QueuedItem) models.ProcessResult {
		return models.Retry("connection refused")
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopen simulates a process restart.
	reopened, err := queue.NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, item.ID, items[0].ID)
	assert.Equal(t, models.ItemTransaction, items[0].Type)
	assert.JSONEq(t, `{"transaction_id":"tx-durable","total":4200}`, string(items[0].Payload))
	assert.Equal(t, 1, items[0].Attempts)
	assert.Equal(t, "connection refused", items[0].LastError)
}

func TestSQLiteStoreDuplicateID(t *testing.T) {
	tmpDir := t.TempDir()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	ctx := context.Background()

	store, err := queue.NewSQLiteStore(filepath.Join(tmpDir, "queue.db"), logger)
	require.NoError(t, err)
	defer store.Close()

	item := &models.QueuedItem{
		ID:      "dup-1",
		Type:    models.ItemReturn,
		Payload: []byte(`{}`),
	}
	require.NoError(t, store.Enqueue(ctx, item))

	err = store.Enqueue(ctx, &models.QueuedItem{
		ID:      "dup-1",
		Type:    models.ItemReturn,
		Payload: []byte(`{}`),
	})
	assert.Error(t, err)

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
