// Package chat provides the gateway seam to the chat platform plus a REST implementation
package chat

import (
	"context"
	"time"
)

// EmbedField is one name/value pair inside an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is the rich message body the engine keeps in step with platform state
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Timestamp   time.Time    `json:"timestamp,omitempty"`
}

// Message is a channel message as seen by the bridge
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

// Member is a guild member, enough for policy checks
type Member struct {
	UserID    string    `json:"user_id"`
	Nick      string    `json:"nick,omitempty"`
	Roles     []string  `json:"roles"`
	IsBot     bool      `json:"is_bot"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Guild is the server an interaction arrived from
type Guild struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OwnerID      string `json:"owner_id"`
	AdminChannel string `json:"admin_channel,omitempty"`
}

// Gateway is the chat platform port the services depend on
type Gateway interface {
	// ChannelMessage fetches one message, not found is a NotFound error
	ChannelMessage(ctx context.Context, channelID, messageID string) (Message, error)

	// EditMessageEmbed replaces the message embed, interactive components
	// on the message are left untouched
	EditMessageEmbed(ctx context.Context, channelID, messageID string, embed Embed) error

	// SendMessage posts a plain content message to a channel
	SendMessage(ctx context.Context, channelID, content string) error

	// Member fetches a guild member
	Member(ctx context.Context, guildID, userID string) (Member, error)

	// Guild fetches guild metadata
	Guild(ctx context.Context, guildID string) (Guild, error)

	// NotifyAdmins posts to the guild admin channel when one is configured
	NotifyAdmins(ctx context.Context, guildID, content string) error
}
