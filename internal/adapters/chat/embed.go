package chat

import (
	"fmt"
	"time"

	"nafbridge/internal/adapters/naffles"
)

// embed colors by entity status
const (
	colorLive      = 0x2ecc71
	colorPaused    = 0xf1c40f
	colorCompleted = 0x3498db
	colorClosed    = 0x95a5a6
	colorFailed    = 0xe74c3c
)

func statusColor(status string) int {
	switch status {
	case "live", "active":
		return colorLive
	case "paused":
		return colorPaused
	case "completed", "finished":
		return colorCompleted
	case "closed", "ended":
		return colorClosed
	case "failed", "cancelled":
		return colorFailed
	default:
		return colorClosed
	}
}

// TaskEmbed renders the authoritative task snapshot as a message embed
func TaskEmbed(snap naffles.TaskSnapshot, now time.Time) Embed {
	e := Embed{
		Title:       snap.Title,
		Description: snap.Description,
		Color:       statusColor(snap.Status),
		Footer:      "Synced with Naffles",
		Timestamp:   now,
		Fields: []EmbedField{
			{Name: "Status", Value: snap.Status, Inline: true},
		},
	}
	if snap.TotalRequired > 0 {
		e.Fields = append(e.Fields, EmbedField{
			Name:   "Progress",
			Value:  fmt.Sprintf("%d / %d", snap.CompletedCount, snap.TotalRequired),
			Inline: true,
		})
	} else if snap.CompletedCount > 0 {
		e.Fields = append(e.Fields, EmbedField{
			Name:   "Completions",
			Value:  fmt.Sprintf("%d", snap.CompletedCount),
			Inline: true,
		})
	}
	return e
}

// AllowlistEmbed renders the authoritative allowlist snapshot as a message embed
func AllowlistEmbed(snap naffles.AllowlistSnapshot, now time.Time) Embed {
	e := Embed{
		Title:     snap.Title,
		Color:     statusColor(snap.Status),
		Footer:    "Synced with Naffles",
		Timestamp: now,
		Fields: []EmbedField{
			{Name: "Status", Value: snap.Status, Inline: true},
			{Name: "Entries", Value: fmt.Sprintf("%d", snap.ParticipantCount), Inline: true},
		},
	}
	if snap.WinnerCount > 0 {
		e.Fields = append(e.Fields, EmbedField{
			Name:   "Winners",
			Value:  fmt.Sprintf("%d", snap.WinnerCount),
			Inline: true,
		})
	}
	if !snap.EndsAt.IsZero() {
		e.Fields = append(e.Fields, EmbedField{
			Name:  "Ends",
			Value: snap.EndsAt.UTC().Format(time.RFC1123),
		})
	}
	return e
}

// StatusNotification is the short message emitted on notable status changes
func StatusNotification(kind, title, status string) string {
	return fmt.Sprintf("**%s** %s is now **%s**", kind, title, status)
}
