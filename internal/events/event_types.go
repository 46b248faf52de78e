package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered  EventType = "user_registered"
	EventUserLoggedIn    EventType = "user_logged_in"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventPasswordChanged EventType = "password_changed"
	EventUserLoggedOut   EventType = "user_logged_out"
)

// Event represents an auth event emitted by the service layer.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
