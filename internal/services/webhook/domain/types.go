// Package domain defines the webhook ingress event model and wire types
package domain

import "time"

// EventType is the closed set of platform event names the bridge accepts
type EventType string

// accepted event types
const (
	EventTaskStatusChanged EventType = "task.status_changed"
	EventTaskProgress      EventType = "task.progress_updated"
	EventTaskCompleted     EventType = "task.completed"

	EventAllowlistStatus      EventType = "allowlist.status_changed"
	EventAllowlistParticipant EventType = "allowlist.participant_added"
	EventAllowlistWinner      EventType = "allowlist.winner_selected"

	EventUserProgress    EventType = "user.progress_updated"
	EventUserPoints      EventType = "user.points_earned"
	EventUserAchievement EventType = "user.achievement_unlocked"

	EventCommunitySettings EventType = "community.settings_changed"
	EventSystemMaintenance EventType = "system.maintenance"
)

// Event is one signed platform event
// Timestamp is epoch milliseconds as the platform sends it
type Event struct {
	EventType EventType      `json:"eventType" validate:"required"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp,omitempty"`
	BatchID   string         `json:"batchId,omitempty"`
}

// Batch groups events delivered in one signed request
type Batch struct {
	BatchID   string  `json:"batchId" validate:"required"`
	Events    []Event `json:"events" validate:"required,min=1,dive"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Receipt acknowledges a single event
type Receipt struct {
	Success   bool      `json:"success"`
	Processed bool      `json:"processed"`
	SyncID    string    `json:"syncId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventResult is the per-event outcome inside a batch receipt
type EventResult struct {
	Success bool   `json:"success"`
	SyncID  string `json:"syncId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchReceipt acknowledges a batch, surviving events are never replayed
type BatchReceipt struct {
	Success   bool          `json:"success"`
	BatchID   string        `json:"batchId"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Results   []EventResult `json:"results"`
	Timestamp time.Time     `json:"timestamp"`
}

// Stats is the ingress counter snapshot served by /metrics
type Stats struct {
	Received      uint64    `json:"webhooksReceived"`
	Processed     uint64    `json:"webhooksProcessed"`
	Failed        uint64    `json:"webhooksFailed"`
	Batches       uint64    `json:"batchWebhooks"`
	LastWebhookAt time.Time `json:"lastWebhookTime,omitempty"`
}

// Registration is the /register handshake response
type Registration struct {
	RegistrationID string    `json:"registrationId"`
	Timestamp      time.Time `json:"timestamp"`
}
