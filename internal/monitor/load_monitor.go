package monitor

import "context"

// LoadMetrics is a snapshot of pipeline capacity usage.
type LoadMetrics struct {
	// ActiveRuns is the number of pipeline runs holding a slot
	ActiveRuns int64
	// MaxRuns is the number of slots
	MaxRuns int64
	// LoadPercentage is ActiveRuns/MaxRuns as a percentage (0-100)
	LoadPercentage float64
}

// LoadMonitor bounds the number of concurrent pipeline runs and reports how
// much of that capacity is in use.
type LoadMonitor interface {
	GetMetrics() LoadMetrics

	// CanAcceptTask reports whether a slot is free right now.
	CanAcceptTask() bool

	// IsHealthy reports whether load is at or below the health threshold.
	IsHealthy() bool

	// TryAcquire takes a slot without waiting. The caller MUST call Release
	// after a successful acquire.
	TryAcquire() bool

	// Acquire waits for a slot until ctx is done.
	Acquire(ctx context.Context) error

	Release()
}
