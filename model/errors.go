package model

import "errors"

// Error taxonomy shared by the pipeline, queue and protocol layers.
// Each maps to a stable name on the control protocol's ERROR responses.
var (
	// ErrUnresolvedSource means a track's path or URI cannot be opened.
	ErrUnresolvedSource = errors.New("source cannot be opened")

	// ErrInvalidState means a command is not valid in the current play state.
	ErrInvalidState = errors.New("command invalid for current play state")

	// ErrPipelineFatal means the pipeline reported an unrecoverable failure
	// mid-playback.
	ErrPipelineFatal = errors.New("pipeline failure")

	// ErrProtocol means a malformed control command.
	ErrProtocol = errors.New("malformed command")

	// ErrQueueExhausted means advance was requested with nothing left to
	// play. Not surfaced to clients as an error; the daemon reports a
	// normal stopped status instead.
	ErrQueueExhausted = errors.New("queue exhausted")
)

// ErrorName returns the protocol name for a taxonomy error, or a generic
// name for anything else.
func ErrorName(err error) string {
	switch {
	case errors.Is(err, ErrUnresolvedSource):
		return "UnresolvedSourceError"
	case errors.Is(err, ErrInvalidState):
		return "InvalidStateError"
	case errors.Is(err, ErrPipelineFatal):
		return "PipelineFatalError"
	case errors.Is(err, ErrProtocol):
		return "ProtocolError"
	case errors.Is(err, ErrQueueExhausted):
		return "QueueExhaustedError"
	default:
		return "InternalError"
	}
}
