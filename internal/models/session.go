package models

import "time"

// Session binds an opaque client-presented token to an authenticated user.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Permanent bool      `json:"permanent"`
}
