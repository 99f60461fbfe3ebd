package model

import "time"

// PlayState is the daemon's transport state.
type PlayState string

const (
	StateStopped PlayState = "stopped"
	StateLoading PlayState = "loading"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
)

// Status is a point-in-time snapshot of the session, as reported by
// STATUS and pushed to event subscribers.
type Status struct {
	State        PlayState     `json:"state"`
	Position     time.Duration `json:"position"`
	Duration     time.Duration `json:"duration"`
	Volume       float64       `json:"volume"`
	CurrentTrack *Track        `json:"currentTrack,omitempty"`
	QueueLength  int           `json:"queueLength"`
	QueueIndex   int           `json:"queueIndex"` // -1 when no cursor
	Shuffle      bool          `json:"shuffle"`
	Repeat       string        `json:"repeat"`
	LastError    string        `json:"lastError,omitempty"`
}
