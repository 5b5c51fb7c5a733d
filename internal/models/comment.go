package models

import "time"

// Comment is one chat line posted to a live stream. Comments are append-only.
type Comment struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"stream_id"`
	Username  string    `json:"username"`
	Text      string    `json:"comment"`
	CreatedAt time.Time `json:"time"`
}
