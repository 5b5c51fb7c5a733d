package models

import "time"

// LiveStream is one broadcast session started by a host.
type LiveStream struct {
	ID           string     `json:"stream_id"`
	HostUsername string     `json:"host_username"`
	Views        int64      `json:"views"`
	Likes        int64      `json:"likes"`
	CommentCount int64      `json:"comment_count"`
	IsLive       bool       `json:"is_live"`
	LiveSince    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// StreamUpdate carries the fields of a LiveStream that changed in one mutation.
// Nil fields are left untouched by the store.
type StreamUpdate struct {
	Views        *int64
	Likes        *int64
	CommentCount *int64
	EndedAt      *time.Time
}

// Empty reports whether the update carries no fields.
func (u StreamUpdate) Empty() bool {
	return u.Views == nil && u.Likes == nil && u.CommentCount == nil && u.EndedAt == nil
}
