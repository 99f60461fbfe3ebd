package session

import (
	"playd/model"
)

// State is the single shared mutable record for the daemon: play state,
// current track, volume and last error. It is constructed at daemon start
// and mutated exclusively by the daemon loop goroutine; nothing else may
// touch it.
type State struct {
	Play      model.PlayState
	Volume    float64
	Current   *model.Track
	LastError error
}

// NewState returns the zero-value session: stopped, nothing loaded.
func NewState(volume float64) *State {
	return &State{
		Play:   model.StateStopped,
		Volume: volume,
	}
}
