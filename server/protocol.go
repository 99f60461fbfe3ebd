package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"playd/core/queue"
	"playd/core/session"
	"playd/model"
)

// ParseCommand turns one protocol line into a session command. Verbs are
// matched case-insensitively; argument errors come back wrapped in
// ErrProtocol so the connection handler can answer without touching state.
func ParseCommand(line string) (session.Command, error) {
	verb, rest := splitVerb(line)
	if verb == "" {
		return session.Command{}, fmt.Errorf("%w: empty command", model.ErrProtocol)
	}
	args := strings.Fields(rest)

	switch strings.ToUpper(verb) {
	case "LOAD":
		if rest == "" {
			return session.Command{}, fmt.Errorf("%w: LOAD requires a source", model.ErrProtocol)
		}
		return session.Command{Verb: session.VerbLoad, Tracks: []model.Track{model.TrackFromURI(rest)}}, nil

	case "PLAY":
		return session.Command{Verb: session.VerbPlay}, nil

	case "PAUSE":
		return session.Command{Verb: session.VerbPause}, nil

	case "RESUME":
		return session.Command{Verb: session.VerbResume}, nil

	case "STOP":
		return session.Command{Verb: session.VerbStop}, nil

	case "SEEK":
		if len(args) != 1 {
			return session.Command{}, fmt.Errorf("%w: SEEK requires an offset in seconds", model.ErrProtocol)
		}
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return session.Command{}, fmt.Errorf("%w: bad offset %q", model.ErrProtocol, args[0])
		}
		return session.Command{Verb: session.VerbSeek, Offset: time.Duration(secs * float64(time.Second))}, nil

	case "VOLUME":
		if len(args) != 1 {
			return session.Command{}, fmt.Errorf("%w: VOLUME requires a level", model.ErrProtocol)
		}
		level, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return session.Command{}, fmt.Errorf("%w: bad level %q", model.ErrProtocol, args[0])
		}
		return session.Command{Verb: session.VerbVolume, Level: level}, nil

	case "STATUS":
		return session.Command{Verb: session.VerbStatus}, nil

	case "NEXT":
		return session.Command{Verb: session.VerbNext}, nil

	case "PREV":
		return session.Command{Verb: session.VerbPrev}, nil

	case "ENQUEUE":
		if len(args) == 0 {
			return session.Command{}, fmt.Errorf("%w: ENQUEUE requires at least one source", model.ErrProtocol)
		}
		tracks := make([]model.Track, 0, len(args))
		for _, uri := range args {
			tracks = append(tracks, model.TrackFromURI(uri))
		}
		return session.Command{Verb: session.VerbEnqueue, Tracks: tracks}, nil

	case "SHUFFLE":
		enabled, err := parseOnOff(args)
		if err != nil {
			return session.Command{}, err
		}
		return session.Command{Verb: session.VerbShuffle, Enabled: enabled}, nil

	case "REPEAT":
		if len(args) != 1 {
			return session.Command{}, fmt.Errorf("%w: REPEAT requires off, one or all", model.ErrProtocol)
		}
		switch strings.ToLower(args[0]) {
		case "off":
			return session.Command{Verb: session.VerbRepeat, Repeat: queue.RepeatOff}, nil
		case "one":
			return session.Command{Verb: session.VerbRepeat, Repeat: queue.RepeatOne}, nil
		case "all":
			return session.Command{Verb: session.VerbRepeat, Repeat: queue.RepeatAll}, nil
		default:
			return session.Command{}, fmt.Errorf("%w: unknown repeat mode %q", model.ErrProtocol, args[0])
		}

	case "QUEUE":
		return session.Command{Verb: session.VerbQueue}, nil

	case "CLEAR":
		return session.Command{Verb: session.VerbClear}, nil

	case "REMOVE":
		index, err := parseIndex(args, "REMOVE")
		if err != nil {
			return session.Command{}, err
		}
		return session.Command{Verb: session.VerbRemove, Index: index}, nil

	case "GOTO":
		index, err := parseIndex(args, "GOTO")
		if err != nil {
			return session.Command{}, err
		}
		return session.Command{Verb: session.VerbGoto, Index: index}, nil

	case "SAVE":
		if rest == "" {
			return session.Command{}, fmt.Errorf("%w: SAVE requires a path", model.ErrProtocol)
		}
		return session.Command{Verb: session.VerbSave, Path: rest}, nil

	case "PING":
		return session.Command{Verb: session.VerbPing}, nil

	case "SHUTDOWN":
		return session.Command{Verb: session.VerbShutdown}, nil

	default:
		return session.Command{}, fmt.Errorf("%w: unknown command %q", model.ErrProtocol, verb)
	}
}

// splitVerb separates the verb from the remainder of the line. The
// remainder keeps internal spaces so file paths survive LOAD and SAVE.
func splitVerb(line string) (verb, rest string) {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("%w: SHUFFLE requires on or off", model.ErrProtocol)
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected on or off, got %q", model.ErrProtocol, args[0])
	}
}

func parseIndex(args []string, verb string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s requires an index", model.ErrProtocol, verb)
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: bad index %q", model.ErrProtocol, args[0])
	}
	return index, nil
}

// FormatResponse renders one response line, without the trailing newline.
// Errors come out as "ERROR <name> <detail>"; everything else is "OK" with
// an optional payload. STATUS and QUEUE payloads are single-line JSON.
func FormatResponse(resp session.Response) string {
	if resp.Err != nil {
		return fmt.Sprintf("ERROR %s %s", model.ErrorName(resp.Err), resp.Err.Error())
	}
	switch {
	case resp.Status != nil:
		return "OK " + marshalPayload(statusPayload(resp.Status))
	case resp.Queue != nil:
		return "OK " + marshalPayload(queuePayload(resp.Queue, resp.Cursor))
	case resp.Payload != "":
		return "OK " + resp.Payload
	default:
		return "OK"
	}
}

// FormatError renders an error that never reached the daemon, such as a
// parse failure.
func FormatError(err error) string {
	return fmt.Sprintf("ERROR %s %s", model.ErrorName(err), err.Error())
}

// wire DTOs: durations cross the socket as seconds, not nanoseconds.

type wireTrack struct {
	Path     string  `json:"path"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type wireStatus struct {
	State       string     `json:"state"`
	Position    float64    `json:"position"`
	Duration    float64    `json:"duration"`
	Volume      float64    `json:"volume"`
	Track       *wireTrack `json:"track,omitempty"`
	QueueLength int        `json:"queueLength"`
	QueueIndex  int        `json:"queueIndex"`
	Shuffle     bool       `json:"shuffle"`
	Repeat      string     `json:"repeat"`
	LastError   string     `json:"lastError,omitempty"`
}

type wireQueue struct {
	Cursor int         `json:"cursor"`
	Tracks []wireTrack `json:"tracks"`
}

func statusPayload(st *model.Status) wireStatus {
	w := wireStatus{
		State:       string(st.State),
		Position:    st.Position.Seconds(),
		Duration:    st.Duration.Seconds(),
		Volume:      st.Volume,
		QueueLength: st.QueueLength,
		QueueIndex:  st.QueueIndex,
		Shuffle:     st.Shuffle,
		Repeat:      st.Repeat,
		LastError:   st.LastError,
	}
	if st.CurrentTrack != nil {
		t := trackPayload(*st.CurrentTrack)
		w.Track = &t
	}
	return w
}

func queuePayload(tracks []model.Track, cursor int) wireQueue {
	w := wireQueue{Cursor: cursor, Tracks: make([]wireTrack, 0, len(tracks))}
	for _, t := range tracks {
		w.Tracks = append(w.Tracks, trackPayload(t))
	}
	return w
}

func trackPayload(t model.Track) wireTrack {
	return wireTrack{
		Path:     t.Path,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Duration: t.Duration.Seconds(),
	}
}

func marshalPayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
