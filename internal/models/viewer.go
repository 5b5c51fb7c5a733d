package models

import "time"

// Viewer records that a user joined a live stream. One row per (stream, user).
type Viewer struct {
	StreamID string    `json:"stream_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}
