package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepExpiresNormally(t *testing.T) {
	c := NewReal()
	start := c.Now()
	err := c.Sleep(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, c.Now().Sub(start) >= 10*time.Millisecond)
}

func TestSleepCancelledReturnsSentinel(t *testing.T) {
	c := NewReal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSpawnCancelDoesNotPropagateAsError(t *testing.T) {
	c := NewReal()
	started := make(chan struct{})
	task := c.Spawn(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	task.Cancel()
	err := task.Wait()
	assert.NoError(t, err)
	assert.True(t, task.WasCancelled())
	assert.True(t, task.Done())
}

func TestSpawnCompletesWithoutCancellation(t *testing.T) {
	c := NewReal()
	task := c.Spawn(context.Background(), func(ctx context.Context) {
		time.Sleep(5 * time.Millisecond)
	})
	require.NoError(t, task.Wait())
	assert.False(t, task.WasCancelled())
}
