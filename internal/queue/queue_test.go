package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PublishConsume(t *testing.T) {
	q := New[string](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, "a"))
	require.NoError(t, q.Publish(ctx, "b"))
	assert.Equal(t, 2, q.Len())

	var got []string
	err := q.Consume(ctx, func(_ context.Context, v string) {
		got = append(got, v)
		if len(got) == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueue_PublishAfter(t *testing.T) {
	q := New[int](1)
	q.PublishAfter(10*time.Millisecond, 7)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got int
	_ = q.Consume(ctx, func(_ context.Context, v int) {
		got = v
		q.Close()
	})
	assert.Equal(t, 7, got)
}

func TestQueue_Closed(t *testing.T) {
	q := New[int](1)
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Publish(context.Background(), 1), ErrClosed)
	assert.NoError(t, q.Consume(context.Background(), func(context.Context, int) {}))
}

func TestQueue_PublishBlocksUntilCancelled(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Publish(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, 2), context.DeadlineExceeded)
}
