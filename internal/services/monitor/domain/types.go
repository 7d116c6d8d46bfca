// Package domain defines the monitor health, alert, and trend model
package domain

import "time"

// Status grades a component or the whole bridge
type Status string

// statuses, ordered from best to worst
const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Worse returns the worse of two statuses
func Worse(a, b Status) Status {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(s Status) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// component names in the health rollup
const (
	ComponentSyncQueue     = "syncQueue"
	ComponentBatch         = "batchProcessing"
	ComponentWebhook       = "webhookIntegration"
	ComponentErrorRecovery = "errorRecovery"
)

// HealthSnapshot is one periodic sample of the bridge counters
type HealthSnapshot struct {
	At time.Time `json:"timestamp"`

	QueueSize         int     `json:"queueSize"`
	ActiveCount       int     `json:"activeCount"`
	BatchQueueSize    int     `json:"batchQueueSize"`
	Cooldowns         int     `json:"cooldowns"`
	AverageSyncTimeMs float64 `json:"averageSyncTimeMs"`
	FailureRate       float64 `json:"failureRate"`

	SyncOperations   uint64 `json:"syncOperations"`
	SuccessfulSyncs  uint64 `json:"successfulSyncs"`
	FailedSyncs      uint64 `json:"failedSyncs"`
	WebhookEvents    uint64 `json:"webhookEvents"`
	BatchesProcessed uint64 `json:"batchesProcessed"`

	LastWebhookAt time.Time `json:"lastWebhookTime,omitempty"`

	Components map[string]Status `json:"components"`
	Overall    Status            `json:"overall"`
}

// AlertRecord is one threshold violation, deduped per type by cooldown
type AlertRecord struct {
	Type     string    `json:"alertType"`
	Severity Status    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// alert types
const (
	AlertHighFailureRate = "high_failure_rate"
	AlertSlowSync        = "slow_sync"
	AlertQueueBacklog    = "queue_backlog"
	AlertCooldownSpike   = "cooldown_spike"
)

// Recommendation is an operator hint derived from trailing snapshots
type Recommendation struct {
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Trend classifies metric movement over a window
type Trend string

// trends
const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// TrendOf compares first and last, ±10% of first is the stable band.
// A zero first sample is stable unless last moved off zero
func TrendOf(first, last float64) Trend {
	if first == 0 {
		if last > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (last - first) / first
	switch {
	case change > 0.10:
		return TrendIncreasing
	case change < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
