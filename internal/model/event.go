// internal/model/event.go
package model

import "time"

type EventKind string

const (
	EventStarted  EventKind = "started"
	EventSent     EventKind = "sent"
	EventFailed   EventKind = "failed"
	EventStopped  EventKind = "stopped"
	EventTimedOut EventKind = "timed_out"
	EventFinished EventKind = "finished"
	EventKilled   EventKind = "killed"
)

// CampaignEvent is published on the campaign event queue for every step of a run.
type CampaignEvent struct {
	Kind  EventKind `json:"kind"`
	Index int       `json:"index"`
	Total int       `json:"total"`
	Phone string    `json:"phone,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

