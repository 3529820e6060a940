package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "one"))
	require.NoError(t, q.Enqueue(ctx, "two"))
	require.NoError(t, q.Enqueue(ctx, "three"))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	items, err := q.DequeueBatch(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, items)

	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestMemoryQueue_DequeueBatchRespectsMaxItems(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.DequeueBatch(ctx, 2, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, length)
}

func TestMemoryQueue_DequeueBatchTimesOutEmpty(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	start := time.Now()
	items, err := q.DequeueBatch(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueue_DequeueBatchWaitsForFirstItem(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(ctx, "late")
	}()

	items, err := q.DequeueBatch(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []any{"late"}, items)
}

func TestMemoryQueue_ClosedQueueErrors(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	require.NoError(t, q.Close())

	ctx := context.Background()
	assert.ErrorIs(t, q.Enqueue(ctx, "x"), ErrQueueClosed)

	_, err := q.DequeueBatch(ctx, 10, time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Length(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Closing twice is fine
	assert.NoError(t, q.Close())
}

func TestMemoryQueue_EnqueueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(&Config{BatchSize: 1, BatchTimeout: time.Second, Name: "tiny"})
	defer q.Close()
	ctx := context.Background()

	// Fill the channel (capacity is BatchSize*10)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(cancelled, "overflow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	defer dlq.Close()
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, "payload", errors.New("insert failed")))

	items, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "payload", items[0].Item)
	assert.Equal(t, "insert failed", items[0].Error)
	assert.NotEmpty(t, items[0].ID)
	assert.False(t, items[0].Timestamp.IsZero())

	require.NoError(t, dlq.Remove(ctx, items[0].ID))

	items, err = dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, dlq.Remove(ctx, "missing"), ErrItemNotFound)
}

func TestMemoryDeadLetterQueue_ListHonorsMaxItems(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	defer dlq.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, dlq.Add(ctx, i, errors.New("boom")))
		time.Sleep(time.Millisecond) // IDs are timestamps
	}

	items, err := dlq.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Zero means no limit
	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}
