package models

import "time"

// Session identifies one chat session. All conversation state lives with
// the session and dies with it.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
