package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueTrack is one entry in a guild's live playback queue.
type QueueTrack struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	RequestedBy string `json:"requested_by,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// QueueSnapshot is the ephemeral "now playing" state for one guild. It is a
// replica of live bot state, overwritten on every update and tolerant of
// loss; the bot's in-memory queue remains authoritative. UpdatedAt is the
// writer's logical timestamp and decides conflicts, not arrival order.
type QueueSnapshot struct {
	TenantID   uuid.UUID    `json:"tenant_id"`
	NowPlaying *QueueTrack  `json:"now_playing,omitempty"`
	Tracks     []QueueTrack `json:"tracks"`
	Paused     bool         `json:"paused"`
	Volume     int          `json:"volume"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
