package models

import "time"

// Push message types sent by the backend event feed.
const (
	PushSync         = "sync"
	PushTokenRevoked = "token_revoked"
)

// PushMessage is one nudge from the backend event feed.
type PushMessage struct {
	Type string    `json:"type"`
	At   time.Time `json:"at,omitempty"`
}
