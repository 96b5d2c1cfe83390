package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreLoadMonitorCapacity(t *testing.T) {
	m := NewSemaphoreLoadMonitor(2, 0.5)

	require.True(t, m.TryAcquire())
	assert.True(t, m.IsHealthy())
	assert.Equal(t, LoadMetrics{ActiveRuns: 1, MaxRuns: 2, LoadPercentage: 50}, m.GetMetrics())

	require.True(t, m.TryAcquire())
	assert.False(t, m.IsHealthy())
	assert.False(t, m.CanAcceptTask())
	assert.False(t, m.TryAcquire())

	m.Release()
	assert.True(t, m.CanAcceptTask())
	assert.Equal(t, int64(1), m.GetMetrics().ActiveRuns)
	m.Release()
	assert.Zero(t, m.GetMetrics().ActiveRuns)
}

func TestSemaphoreLoadMonitorAcquireHonoursContext(t *testing.T) {
	m := NewSemaphoreLoadMonitor(1, 1)
	require.NoError(t, m.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(1), m.GetMetrics().ActiveRuns)

	m.Release()
	require.NoError(t, m.Acquire(context.Background()))
}

func TestNewSemaphoreLoadMonitorClamps(t *testing.T) {
	m := NewSemaphoreLoadMonitor(0, 7)
	assert.Equal(t, int64(1), m.GetMetrics().MaxRuns)
	assert.Equal(t, 1.0, m.threshold)

	assert.Equal(t, 0.0, NewSemaphoreLoadMonitor(3, -1).threshold)
}
