package service

import (
	"math"
	"sync/atomic"
	"time"

	"nafbridge/internal/services/sync/domain"
)

// ewma smoothing factors for averageSyncTimeMs
const (
	ewmaKeep    = 0.9
	ewmaObserve = 0.1
)

// metrics are written by the run loop and read lock-free by the monitor
type metrics struct {
	syncOperations   atomic.Uint64
	successfulSyncs  atomic.Uint64
	failedSyncs      atomic.Uint64
	webhookEvents    atomic.Uint64
	batchesProcessed atomic.Uint64

	queueSize      atomic.Int64
	activeCount    atomic.Int64
	batchQueueSize atomic.Int64
	cooldownCount  atomic.Int64

	avgSyncBits atomic.Uint64
	avgSamples  atomic.Uint64
	lastSyncAt  atomic.Int64 // unix nanos, 0 when never
}

// observe folds one sync duration into the moving average
// the first sample replaces, later samples decay 0.9/0.1
func (m *metrics) observe(elapsed time.Duration, at time.Time) {
	ms := float64(elapsed) / float64(time.Millisecond)
	if m.avgSamples.Add(1) == 1 {
		m.avgSyncBits.Store(math.Float64bits(ms))
	} else {
		cur := math.Float64frombits(m.avgSyncBits.Load())
		m.avgSyncBits.Store(math.Float64bits(cur*ewmaKeep + ms*ewmaObserve))
	}
	m.lastSyncAt.Store(at.UnixNano())
}

func (m *metrics) average() float64 {
	return math.Float64frombits(m.avgSyncBits.Load())
}

// Stats snapshots every counter for the monitor
func (s *Svc) Stats() domain.Stats {
	st := domain.Stats{
		SyncOperations:    s.metrics.syncOperations.Load(),
		SuccessfulSyncs:   s.metrics.successfulSyncs.Load(),
		FailedSyncs:       s.metrics.failedSyncs.Load(),
		WebhookEvents:     s.metrics.webhookEvents.Load(),
		BatchesProcessed:  s.metrics.batchesProcessed.Load(),
		QueueSize:         int(s.metrics.queueSize.Load()),
		ActiveCount:       int(s.metrics.activeCount.Load()),
		BatchQueueSize:    int(s.metrics.batchQueueSize.Load()),
		CooldownCount:     int(s.metrics.cooldownCount.Load()),
		AverageSyncTimeMs: s.metrics.average(),
	}
	if ns := s.metrics.lastSyncAt.Load(); ns > 0 {
		st.LastSyncAt = time.Unix(0, ns)
	}
	return st
}

// updateGauges republishes loop-owned sizes, called after loop mutations
func (s *Svc) updateGauges() {
	s.metrics.queueSize.Store(int64(len(s.queue)))
	s.metrics.activeCount.Store(int64(len(s.activeIDs)))
	s.metrics.batchQueueSize.Store(int64(len(s.batchQueue)))
	s.metrics.cooldownCount.Store(int64(len(s.cooldowns)))
}
