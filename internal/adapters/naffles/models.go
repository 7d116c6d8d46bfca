package naffles

import "time"

// TaskStatusSync is the body for the task sync-status endpoint
type TaskStatusSync struct {
	Status    string         `json:"status"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AllowlistSync is the body for the allowlist sync-update endpoint
type AllowlistSync struct {
	UpdateType string         `json:"updateType"`
	Changes    map[string]any `json:"changes,omitempty"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ProgressEvent is one user progress step, applied in order
type ProgressEvent struct {
	TaskID    string    `json:"taskId"`
	Delta     int       `json:"delta"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

// UserProgressSync is the body for the user sync-progress endpoint
type UserProgressSync struct {
	Events    []ProgressEvent `json:"events"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// TaskSnapshot is the authoritative task state used as the embed base
type TaskSnapshot struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	Description    string    `json:"description,omitempty"`
	CompletedCount int       `json:"completedCount"`
	TotalRequired  int       `json:"totalRequired,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AllowlistSnapshot is the authoritative allowlist state used as the embed base
type AllowlistSnapshot struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	ParticipantCount int       `json:"participantCount"`
	WinnerCount      int       `json:"winnerCount,omitempty"`
	EndsAt           time.Time `json:"endsAt,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
