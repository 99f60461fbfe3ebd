// Package session runs the daemon's single-threaded event loop. Client
// commands and pipeline callbacks arrive as messages on channels; only
// the loop goroutine mutates the session State and the queue, so a seek
// racing an end-of-stream can never interleave into a torn state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"playd/core/pipeline"
	"playd/core/queue"
	"playd/logger"
	"playd/model"
	"playd/playlist"
)

// Pipeline is the control surface the loop drives. Satisfied by
// pipeline.Controller; tests substitute a fake.
type Pipeline interface {
	Open(track model.Track) (pipeline.Source, error)
	Play(src pipeline.Source, gen uint64) error
	Pause()
	Resume()
	Stop()
	Seek(d time.Duration) error
	SetVolume(level float64) float64
	Volume() float64
	Position() time.Duration
	Duration() time.Duration
	Events() <-chan pipeline.Event
}

// Notifier receives daemon events for push subscribers. May be nil.
type Notifier interface {
	Notify(event string, fields map[string]any)
}

// loadResult is the outcome of an off-loop source open, tagged with the
// generation that requested it so stale results are discarded.
type loadResult struct {
	gen      uint64
	track    model.Track
	src      pipeline.Source
	err      error
	autoplay bool
	// reply is non-nil for client-issued loads; the client's response is
	// held back until the open resolves.
	reply chan Response
	// prior play state, restored if a client load fails while something
	// was already playing.
	prevState model.PlayState
}

// Daemon owns the session State and the queue and serializes every
// mutation through its Run loop.
type Daemon struct {
	pipe     Pipeline
	queue    *queue.Queue
	state    *State
	notifier Notifier

	// gen counts pipeline generations; async results carrying an older
	// gen are ignored.
	gen         uint64
	pendingPlay bool

	cmds        chan Command
	loadResults chan loadResult

	posInterval time.Duration

	shutdownOnce sync.Once
	shutdownC    chan struct{}
	doneC        chan struct{}
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithNotifier attaches an event sink for push subscribers.
func WithNotifier(n Notifier) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithPositionInterval overrides the interval between position events.
func WithPositionInterval(iv time.Duration) Option {
	return func(d *Daemon) { d.posInterval = iv }
}

// NewDaemon wires a daemon around a pipeline and an initial volume.
func NewDaemon(pipe Pipeline, q *queue.Queue, volume float64, opts ...Option) *Daemon {
	d := &Daemon{
		pipe:        pipe,
		queue:       q,
		state:       NewState(pipe.SetVolume(volume)),
		cmds:        make(chan Command),
		loadResults: make(chan loadResult, 4),
		posInterval: 500 * time.Millisecond,
		shutdownC:   make(chan struct{}),
		doneC:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Seed replaces the queue contents before Run starts. Not safe once the
// loop is running; startup wiring only.
func (d *Daemon) Seed(tracks []model.Track) {
	d.queue.Clear()
	d.queue.Enqueue(tracks, -1)
}

// Do submits one command to the loop and waits for its response. Any
// goroutine may call it.
func (d *Daemon) Do(cmd Command) Response {
	cmd.reply = make(chan Response, 1)
	select {
	case d.cmds <- cmd:
	case <-d.doneC:
		return Response{Err: fmt.Errorf("%w: daemon is shutting down", model.ErrInvalidState)}
	}
	select {
	case resp := <-cmd.reply:
		return resp
	case <-d.doneC:
		return Response{Err: fmt.Errorf("%w: daemon is shutting down", model.ErrInvalidState)}
	}
}

// ShutdownRequested is closed when a SHUTDOWN command was accepted.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdownC
}

// Run consumes messages until ctx is cancelled or SHUTDOWN arrives. It
// is the only goroutine that touches State and the queue.
func (d *Daemon) Run(ctx context.Context) {
	defer close(d.doneC)

	ticker := time.NewTicker(d.posInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.teardown()
			return
		case <-d.shutdownC:
			d.teardown()
			return
		case cmd := <-d.cmds:
			if resp := d.handleCommand(cmd); !resp.deferred {
				cmd.reply <- resp
			}
		case res := <-d.loadResults:
			d.handleLoadResult(res)
		case ev := <-d.pipe.Events():
			d.handlePipelineEvent(ev)
		case <-ticker.C:
			if d.state.Play == model.StatePlaying {
				d.notify("position", map[string]any{
					"position": d.pipe.Position().Seconds(),
					"duration": d.pipe.Duration().Seconds(),
				})
			}
		}
	}
}

func (d *Daemon) teardown() {
	d.pipe.Stop()
	d.state.Play = model.StateStopped
	d.notify("shutdown", nil)
	logger.Info("session loop stopped")
}

func (d *Daemon) handleCommand(cmd Command) Response {
	switch cmd.Verb {
	case VerbLoad:
		return d.doLoad(cmd)
	case VerbPlay:
		return d.doPlay(cmd)
	case VerbPause:
		return d.doPause()
	case VerbResume:
		return d.doResume()
	case VerbStop:
		return d.doStop()
	case VerbSeek:
		return d.doSeek(cmd.Offset)
	case VerbVolume:
		d.state.Volume = d.pipe.SetVolume(cmd.Level)
		return Response{Payload: fmt.Sprintf("%.2f", d.state.Volume)}
	case VerbStatus:
		return Response{Status: d.status()}
	case VerbNext:
		return d.doNext(cmd)
	case VerbPrev:
		return d.doPrev(cmd)
	case VerbEnqueue:
		d.queue.Enqueue(cmd.Tracks, -1)
		return Response{Payload: fmt.Sprintf("%d", d.queue.Len())}
	case VerbShuffle:
		if cmd.Enabled {
			d.queue.SetMode(queue.ModeShuffle)
		} else {
			d.queue.SetMode(queue.ModeLinear)
		}
		return Response{Payload: string(d.queue.Mode())}
	case VerbRepeat:
		d.queue.SetRepeat(cmd.Repeat)
		return Response{Payload: string(d.queue.Repeat())}
	case VerbQueue:
		return Response{Queue: d.queue.Tracks(), Cursor: d.queue.Cursor()}
	case VerbClear:
		d.queue.Clear()
		return Response{}
	case VerbRemove:
		if err := d.queue.Remove(cmd.Index); err != nil {
			return Response{Err: err}
		}
		return Response{Payload: fmt.Sprintf("%d", d.queue.Len())}
	case VerbGoto:
		track, err := d.queue.Goto(cmd.Index)
		if err != nil {
			return Response{Err: err}
		}
		return d.startLoad(track, true, cmd.reply)
	case VerbSave:
		if err := playlist.Save(cmd.Path, d.queue.Tracks()); err != nil {
			return Response{Err: err}
		}
		return Response{Payload: cmd.Path}
	case VerbPing:
		return Response{Payload: "pong"}
	case VerbShutdown:
		d.shutdownOnce.Do(func() { close(d.shutdownC) })
		return Response{Payload: "bye"}
	}
	return Response{Err: fmt.Errorf("%w: unknown verb", model.ErrProtocol)}
}

// doLoad starts a client-issued load. The open runs off-loop so a slow
// source cannot stall unrelated commands; the client's reply is held
// until the result message comes back.
func (d *Daemon) doLoad(cmd Command) Response {
	if len(cmd.Tracks) != 1 {
		return Response{Err: fmt.Errorf("%w: LOAD takes exactly one source", model.ErrProtocol)}
	}
	return d.startLoad(cmd.Tracks[0], false, cmd.reply)
}

// startLoad begins loading track under a fresh generation. If reply is
// non-nil the response is deferred until the open resolves; callers get
// a sentinel "deferred" response they must not forward. autoplay starts
// playback on readiness regardless of a pending PLAY.
func (d *Daemon) startLoad(track model.Track, autoplay bool, reply chan Response) Response {
	d.gen++
	gen := d.gen
	prev := d.state.Play
	d.state.Play = model.StateLoading
	d.pendingPlay = false // a new load clears any older pending start
	d.notifyState()

	logger.Info("loading source",
		logger.String("path", track.Path),
		logger.Uint64("gen", gen),
		logger.Bool("autoplay", autoplay))

	go func() {
		src, err := d.pipe.Open(track)
		d.loadResults <- loadResult{
			gen:       gen,
			track:     track,
			src:       src,
			err:       err,
			autoplay:  autoplay,
			reply:     reply,
			prevState: prev,
		}
	}()

	if reply != nil {
		return Response{deferred: true}
	}
	return Response{}
}

func (d *Daemon) handleLoadResult(res loadResult) {
	// A newer load or stop superseded this one; discard it.
	if res.gen != d.gen {
		if res.src != nil {
			res.src.Close()
		}
		if res.reply != nil {
			res.reply <- Response{Err: fmt.Errorf("%w: superseded by a newer load", model.ErrInvalidState)}
		}
		return
	}

	if res.err != nil {
		d.state.LastError = res.err
		d.notify("error", map[string]any{"error": res.err.Error()})
		if res.reply == nil {
			// Auto-advance failure: stop rather than retry forever.
			d.pipe.Stop()
			d.state.Play = model.StateStopped
			d.state.Current = nil
			d.notifyState()
			logger.Error("auto-advance load failed", logger.ErrorField(res.err))
			return
		}
		// Client load failure: whatever was playing keeps playing.
		d.state.Play = res.prevState
		d.notifyState()
		res.reply <- Response{Err: res.err}
		return
	}

	if err := d.pipe.Play(res.src, res.gen); err != nil {
		d.state.LastError = err
		d.state.Play = model.StateStopped
		d.state.Current = nil
		d.notifyState()
		if res.reply != nil {
			res.reply <- Response{Err: err}
		}
		return
	}

	track := res.track
	if dur := d.pipe.Duration(); dur > 0 {
		track.Duration = dur
	}
	d.state.Current = &track
	d.state.LastError = nil

	if res.autoplay || d.pendingPlay {
		d.state.Play = model.StatePlaying
	} else {
		// Loaded but not started: hold the pipeline paused at zero.
		d.pipe.Pause()
		d.state.Play = model.StatePaused
	}
	d.pendingPlay = false

	d.notify("track_changed", map[string]any{"track": track})
	d.notifyState()

	if res.reply != nil {
		res.reply <- Response{Payload: track.Path}
	}
}

func (d *Daemon) doPlay(cmd Command) Response {
	switch d.state.Play {
	case model.StatePlaying:
		return Response{Payload: "playing"} // no-op
	case model.StatePaused:
		d.pipe.Resume()
		d.state.Play = model.StatePlaying
		d.notifyState()
		return Response{Payload: "playing"}
	case model.StateLoading:
		d.pendingPlay = true
		return Response{Payload: "loading"}
	default: // stopped
		// Nothing loaded: start the queue if it has anything to offer.
		track, ok := d.queue.Current()
		if !ok {
			track, ok = d.queue.Advance()
		}
		if !ok {
			return Response{Err: fmt.Errorf("%w: nothing loaded and queue is empty", model.ErrInvalidState)}
		}
		return d.startLoad(track, true, cmd.reply)
	}
}

func (d *Daemon) doPause() Response {
	if d.state.Play != model.StatePlaying {
		return Response{Err: fmt.Errorf("%w: cannot pause while %s", model.ErrInvalidState, d.state.Play)}
	}
	d.pipe.Pause()
	d.state.Play = model.StatePaused
	d.notifyState()
	return Response{Payload: "paused"}
}

func (d *Daemon) doResume() Response {
	if d.state.Play != model.StatePaused {
		return Response{Err: fmt.Errorf("%w: cannot resume while %s", model.ErrInvalidState, d.state.Play)}
	}
	d.pipe.Resume()
	d.state.Play = model.StatePlaying
	d.notifyState()
	return Response{Payload: "playing"}
}

func (d *Daemon) doStop() Response {
	// Invalidate any in-flight load or pending pipeline event.
	d.gen++
	d.pendingPlay = false
	d.pipe.Stop()
	d.state.Play = model.StateStopped
	d.notifyState()
	return Response{Payload: "stopped"}
}

func (d *Daemon) doSeek(offset time.Duration) Response {
	if d.state.Play != model.StatePlaying && d.state.Play != model.StatePaused {
		return Response{Err: fmt.Errorf("%w: cannot seek while %s", model.ErrInvalidState, d.state.Play)}
	}
	// Out-of-range offsets clamp rather than fail; the pipeline clamps
	// the upper bound against the decoded length.
	if offset < 0 {
		offset = 0
	}
	if err := d.pipe.Seek(offset); err != nil {
		d.state.LastError = err
		return Response{Err: err}
	}
	return Response{Payload: fmt.Sprintf("%.1f", d.pipe.Position().Seconds())}
}

func (d *Daemon) doNext(cmd Command) Response {
	track, ok := d.queue.Advance()
	if !ok {
		// Queue exhausted: a normal stop, not a client error.
		d.gen++
		d.pendingPlay = false
		d.pipe.Stop()
		d.state.Play = model.StateStopped
		d.state.Current = nil
		d.notifyState()
		return Response{Payload: "stopped"}
	}
	return d.startLoad(track, true, cmd.reply)
}

func (d *Daemon) doPrev(cmd Command) Response {
	track, ok := d.queue.Previous()
	if !ok {
		return Response{Payload: "none"}
	}
	return d.startLoad(track, true, cmd.reply)
}

func (d *Daemon) handlePipelineEvent(ev pipeline.Event) {
	// Stale pipeline generation: a newer load or stop already happened.
	if ev.Gen != d.gen {
		logger.Debug("discarding stale pipeline event",
			logger.Uint64("gen", ev.Gen),
			logger.Uint64("current", d.gen))
		return
	}

	switch ev.Type {
	case pipeline.EventEOS:
		d.notify("eos", nil)
		track, ok := d.queue.Advance()
		if !ok {
			d.pipe.Stop()
			d.state.Play = model.StateStopped
			d.state.Current = nil
			d.notifyState()
			logger.Info("queue exhausted")
			return
		}
		d.startLoad(track, true, nil)
	case pipeline.EventError:
		d.state.LastError = ev.Err
		d.pipe.Stop()
		d.state.Play = model.StateStopped
		d.notify("error", map[string]any{"error": ev.Err.Error()})
		d.notifyState()
		logger.Error("pipeline failure", logger.ErrorField(ev.Err))
	}
}

func (d *Daemon) status() *model.Status {
	st := &model.Status{
		State:        d.state.Play,
		Position:     d.pipe.Position(),
		Duration:     d.pipe.Duration(),
		Volume:       d.state.Volume,
		CurrentTrack: d.state.Current,
		QueueLength:  d.queue.Len(),
		QueueIndex:   d.queue.Cursor(),
		Shuffle:      d.queue.Mode() == queue.ModeShuffle,
		Repeat:       string(d.queue.Repeat()),
	}
	if d.state.LastError != nil {
		st.LastError = d.state.LastError.Error()
	}
	return st
}

// NotifyPlaylistChanged forwards a seed-file change to subscribers.
// Called from the watcher goroutine; touches no session state.
func (d *Daemon) NotifyPlaylistChanged(path string) {
	d.notify("playlist_changed", map[string]any{"path": path})
}

func (d *Daemon) notifyState() {
	d.notify("state_changed", map[string]any{"state": string(d.state.Play)})
}

func (d *Daemon) notify(event string, fields map[string]any) {
	if d.notifier != nil {
		d.notifier.Notify(event, fields)
	}
}
