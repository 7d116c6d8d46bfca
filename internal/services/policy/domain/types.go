// Package domain defines the policy layer decision model
package domain

import (
	"context"
	"time"
)

// Severity grades a denial or anomaly
type Severity string

// severities
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Decision is the admission verdict for one interaction
type Decision struct {
	Admit    bool     `json:"admit"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// Admitted is the positive decision
func Admitted() Decision { return Decision{Admit: true} }

// Denied builds a denial
func Denied(reason string, sev Severity) Decision {
	return Decision{Admit: false, Reason: reason, Severity: sev}
}

// Caller describes the interacting account inside the guild
type Caller struct {
	UserID       string    `json:"userId"`
	IsBot        bool      `json:"isBot"`
	IsGuildOwner bool      `json:"isGuildOwner"`
	CreatedAt    time.Time `json:"createdAt"`
	JoinedAt     time.Time `json:"joinedAt,omitempty"`

	// RoleIDs and RoleNames are both consulted for role requirements,
	// names match case-insensitively
	RoleIDs   []string `json:"roleIds,omitempty"`
	RoleNames []string `json:"roleNames,omitempty"`

	// Capabilities are platform permission tokens, "administrator"
	// satisfies admin-only commands
	Capabilities []string `json:"capabilities,omitempty"`
}

// Interaction is one user-originated event up for admission
type Interaction struct {
	GuildID   string  `json:"guildId"`
	ChannelID string  `json:"channelId,omitempty"`
	Caller    *Caller `json:"caller,omitempty"`
}

// AnomalyEvent is a behavioral signal, never a denial by itself
type AnomalyEvent struct {
	Type     string         `json:"type"`
	GuildID  string         `json:"guildId,omitempty"`
	UserID   string         `json:"userId,omitempty"`
	Severity Severity       `json:"severity"`
	At       time.Time      `json:"at"`
	Details  map[string]any `json:"details,omitempty"`
}

// anomaly types
const (
	AnomalyRapidCommands      = "rapid_commands"
	AnomalyCommandAbuse       = "command_abuse"
	AnomalySuspiciousPattern  = "suspicious_pattern"
	AnomalyNewAccountActivity = "new_account_activity"
	AnomalyMassJoins          = "mass_joins"
)

// Stats is the counter snapshot the monitor samples
type Stats struct {
	Evaluations uint64 `json:"evaluations"`
	Admissions  uint64 `json:"admissions"`
	Denials     uint64 `json:"denials"`
	Anomalies   uint64 `json:"anomalies"`
}

// EvaluatePort admits or rejects interactions
type EvaluatePort interface {
	Evaluate(ctx context.Context, in Interaction, commandName string) Decision
}

// JoinPort feeds member-join events into mass-join detection
type JoinPort interface {
	RecordJoin(ctx context.Context, guildID, userID string, accountCreatedAt time.Time)
}

// StatsPort exposes policy counters
type StatsPort interface {
	Stats() Stats
}
