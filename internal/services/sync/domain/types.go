// Package domain defines the sync engine types, merge rules, and ports
package domain

import (
	"fmt"
	"time"
)

// Kind discriminates the sync operation union
type Kind string

// operation kinds
const (
	KindTaskStatus      Kind = "task_status"
	KindAllowlistUpdate Kind = "allowlist_update"
	KindUserProgress    Kind = "user_progress"
)

// State is the lifecycle position of an operation
type State string

// operation states
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// TaskStatusPayload carries a task status change
type TaskStatusPayload struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AllowlistPayload carries an allowlist change
type AllowlistPayload struct {
	UpdateType string         `json:"updateType"`
	Changes    map[string]any `json:"changes,omitempty"`
}

// ProgressEvent is one user progress step, order matters
type ProgressEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// ProgressPayload accumulates user progress events
type ProgressPayload struct {
	Events []ProgressEvent `json:"events"`
}

// Operation is one unit of convergence work, exactly one payload
// pointer is set according to Kind
type Operation struct {
	SyncID      string    `json:"syncId"`
	Kind        Kind      `json:"kind"`
	Key         string    `json:"key"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	LastAttempt time.Time `json:"lastAttemptAt,omitempty"`
	RetryCount  int       `json:"retryCount"`

	// NextAttempt gates retry scheduling, zero means ready now
	NextAttempt time.Time `json:"nextAttempt,omitempty"`

	Task      *TaskStatusPayload `json:"task,omitempty"`
	Allowlist *AllowlistPayload  `json:"allowlist,omitempty"`
	Progress  *ProgressPayload   `json:"progress,omitempty"`
}

// EntityKey is the exclusive-active identity, one in-flight op per value
func (o Operation) EntityKey() string { return string(o.Kind) + "|" + o.Key }

// NewSyncID derives the queue identity for a fresh enqueue
func NewSyncID(kind Kind, key string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", kind, key, now.UnixMilli())
}

// NewTaskStatus builds a pending TaskStatus operation
func NewTaskStatus(key string, p TaskStatusPayload, now time.Time) Operation {
	return Operation{
		SyncID:    NewSyncID(KindTaskStatus, key, now),
		Kind:      KindTaskStatus,
		Key:       key,
		State:     StatePending,
		CreatedAt: now,
		Task:      &p,
	}
}

// NewAllowlistUpdate builds a pending AllowlistUpdate operation
func NewAllowlistUpdate(key string, p AllowlistPayload, now time.Time) Operation {
	return Operation{
		SyncID:    NewSyncID(KindAllowlistUpdate, key, now),
		Kind:      KindAllowlistUpdate,
		Key:       key,
		State:     StatePending,
		CreatedAt: now,
		Allowlist: &p,
	}
}

// NewUserProgress builds a pending UserProgress operation
func NewUserProgress(key string, p ProgressPayload, now time.Time) Operation {
	return Operation{
		SyncID:    NewSyncID(KindUserProgress, key, now),
		Kind:      KindUserProgress,
		Key:       key,
		State:     StatePending,
		CreatedAt: now,
		Progress:  &p,
	}
}

// Priority orders batch envelopes, high drains before normal
type Priority int

// batch priorities
const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// BatchEnvelope groups operations that arrived as one webhook batch.
// High priority envelopes drain first, FIFO within each priority
type BatchEnvelope struct {
	BatchID    string      `json:"batchId"`
	Priority   Priority    `json:"priority"`
	Ops        []Operation `json:"ops"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// MessageRef locates one chat message that mirrors an entity
type MessageRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Stats is the counter snapshot the monitor samples
type Stats struct {
	SyncOperations    uint64    `json:"syncOperations"`
	SuccessfulSyncs   uint64    `json:"successfulSyncs"`
	FailedSyncs       uint64    `json:"failedSyncs"`
	WebhookEvents     uint64    `json:"webhookEvents"`
	BatchesProcessed  uint64    `json:"batchesProcessed"`
	QueueSize         int       `json:"queueSize"`
	ActiveCount       int       `json:"activeCount"`
	BatchQueueSize    int       `json:"batchQueueSize"`
	CooldownCount     int       `json:"cooldownCount"`
	AverageSyncTimeMs float64   `json:"averageSyncTimeMs"`
	LastSyncAt        time.Time `json:"lastSyncAt,omitempty"`
}

// FailureRate is failed over total with a floor so fresh engines read 0
func (s Stats) FailureRate() float64 {
	total := s.SyncOperations
	if total == 0 {
		total = 1
	}
	return float64(s.FailedSyncs) / float64(total)
}
