package session

import (
	"time"

	"playd/core/queue"
	"playd/model"
)

// Verb enumerates every control operation the daemon understands. The
// protocol layer parses text into one of these; dispatch is an exhaustive
// switch so an unhandled verb is a compile-time smell, not a silent drop.
type Verb int

const (
	VerbLoad Verb = iota
	VerbPlay
	VerbPause
	VerbResume
	VerbStop
	VerbSeek
	VerbVolume
	VerbStatus
	VerbNext
	VerbPrev
	VerbEnqueue
	VerbShuffle
	VerbRepeat
	VerbQueue
	VerbClear
	VerbRemove
	VerbGoto
	VerbSave
	VerbPing
	VerbShutdown
)

// Command is a single parsed client request: a verb plus typed arguments.
// Constructed per received line, discarded after dispatch.
type Command struct {
	Verb    Verb
	Tracks  []model.Track // LOAD, ENQUEUE
	Offset  time.Duration // SEEK
	Level   float64       // VOLUME
	Index   int           // REMOVE, GOTO
	Enabled bool          // SHUFFLE
	Repeat  queue.Repeat  // REPEAT
	Path    string        // SAVE

	reply chan Response
}

// Response is the daemon's answer to one command. Err maps to an ERROR
// line on the wire; otherwise Payload (if any) rides on the OK line, and
// Status/Queue carry structured results for STATUS and QUEUE.
type Response struct {
	Err     error
	Payload string
	Status  *model.Status
	Queue   []model.Track
	Cursor  int

	// deferred marks a response that will be delivered later by the load
	// result handler; the loop must not send it to the client.
	deferred bool
}
