package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vention.dev/cellrt/internal/clock"
)

func TestTrackerCancelAllCancelsEveryTask(t *testing.T) {
	c := clock.NewReal()
	tr := newTaskTracker()

	started := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		task := c.Spawn(context.Background(), func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
		})
		tr.track(task)
	}
	for i := 0; i < 3; i++ {
		<-started
	}
	require.Equal(t, 3, tr.len())

	tr.cancelAll()
	assert.Equal(t, 0, tr.len())
}

func TestTrackerCancelAllIdempotent(t *testing.T) {
	tr := newTaskTracker()
	tr.cancelAll()
	tr.cancelAll()
	assert.Equal(t, 0, tr.len())
}

func TestTrackerForget(t *testing.T) {
	c := clock.NewReal()
	tr := newTaskTracker()
	task := c.Spawn(context.Background(), func(ctx context.Context) {
		time.Sleep(time.Millisecond)
	})
	tr.track(task)
	require.NoError(t, task.Wait())
	tr.forget(task)
	assert.Equal(t, 0, tr.len())
}
