//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepress/internal/testutil/containers"
)

func TestRedisQueue(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	q := NewRedisQueue(rc.Client, "pagepress:sweep:test")

	require.NoError(t, q.Push(ctx, "usr-1-1.pdf"))
	require.NoError(t, q.Push(ctx, "usr-1-2.pdf"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "usr-1-1.pdf", first.Path)
	assert.Zero(t, first.Attempts)

	require.NoError(t, q.Requeue(ctx, *first))

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "usr-1-2.pdf", second.Path)

	again, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "usr-1-1.pdf", again.Path)
	assert.Equal(t, 1, again.Attempts)

	empty, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRedisQueueAcceptsPlainPaths(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	q := NewRedisQueue(rc.Client, "pagepress:sweep:test")

	require.NoError(t, rc.Client.LPush(ctx, "pagepress:sweep:test", "manual.pdf").Err())

	item, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "manual.pdf", item.Path)
}
