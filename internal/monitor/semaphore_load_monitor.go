package monitor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SemaphoreLoadMonitor implements LoadMonitor with a weighted semaphore of one
// unit per run.
type SemaphoreLoadMonitor struct {
	sem       *semaphore.Weighted
	maxRuns   int64
	active    atomic.Int64
	threshold float64 // 0.0 - 1.0 of maxRuns
}

// NewSemaphoreLoadMonitor allows up to maxRuns concurrent runs. healthThreshold
// (clamped to 0.0-1.0) is the load fraction above which IsHealthy reports false;
// 0.8 means unhealthy once more than 80% of the slots are taken.
func NewSemaphoreLoadMonitor(maxRuns int64, healthThreshold float64) *SemaphoreLoadMonitor {
	if maxRuns < 1 {
		maxRuns = 1
	}

	return &SemaphoreLoadMonitor{
		sem:       semaphore.NewWeighted(maxRuns),
		maxRuns:   maxRuns,
		threshold: min(max(healthThreshold, 0.0), 1.0),
	}
}

func (m *SemaphoreLoadMonitor) GetMetrics() LoadMetrics {
	active := m.active.Load()

	return LoadMetrics{
		ActiveRuns:     active,
		MaxRuns:        m.maxRuns,
		LoadPercentage: float64(active) / float64(m.maxRuns) * 100.0,
	}
}

func (m *SemaphoreLoadMonitor) CanAcceptTask() bool {
	if m.sem.TryAcquire(1) {
		m.sem.Release(1)
		return true
	}
	return false
}

func (m *SemaphoreLoadMonitor) IsHealthy() bool {
	return m.GetMetrics().LoadPercentage/100.0 <= m.threshold
}

func (m *SemaphoreLoadMonitor) TryAcquire() bool {
	if m.sem.TryAcquire(1) {
		m.active.Add(1)
		return true
	}
	return false
}

func (m *SemaphoreLoadMonitor) Acquire(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	m.active.Add(1)
	return nil
}

func (m *SemaphoreLoadMonitor) Release() {
	m.active.Add(-1)
	m.sem.Release(1)
}

var _ LoadMonitor = (*SemaphoreLoadMonitor)(nil)
