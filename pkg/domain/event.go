package domain

import "time"

type EventType string

const (
	EventCreated EventType = "paste.created"
	EventViewed  EventType = "paste.viewed"
	EventBurned  EventType = "paste.burned"
)

// Event describes a lifecycle transition. It never carries paste content.
type Event struct {
	Type           EventType `json:"type"`
	PasteID        string    `json:"paste_id"`
	At             time.Time `json:"at"`
	RemainingViews *int      `json:"remaining_views,omitempty"`
}
