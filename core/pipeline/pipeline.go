// Package pipeline owns the single audio decode/output pipeline and
// translates its asynchronous events into messages for the session loop.
package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"playd/logger"
	"playd/model"
)

// EventType classifies asynchronous pipeline notifications.
type EventType int

const (
	// EventEOS signals that the current track finished playing normally.
	EventEOS EventType = iota
	// EventError signals an unrecoverable mid-playback failure.
	EventError
)

// Event is an asynchronous notification from the pipeline's own execution
// context. Gen identifies the pipeline generation that produced it so
// stale events can be discarded after a newer load.
type Event struct {
	Gen  uint64
	Type EventType
	Err  error
}

// Source is an opened, decodable track ready to be attached to the
// output. Opening is separated from playback so the session loop can run
// the potentially slow open off-loop.
type Source interface {
	Duration() time.Duration
	Close() error
}

// fileSource is a decoded local file.
type fileSource struct {
	path     string
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
}

func (s *fileSource) Duration() time.Duration {
	return s.format.SampleRate.D(s.streamer.Len())
}

func (s *fileSource) Close() error {
	err := s.streamer.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Controller manages exactly one pipeline instance at a time.
type Controller struct {
	mu sync.Mutex

	initialized bool
	sampleRate  beep.SampleRate

	src    *fileSource
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  float64 // linear 0.0-1.0, kept across pipelines

	events chan Event
}

// NewController creates a pipeline controller with the given initial
// volume level.
func NewController(level float64) *Controller {
	return &Controller{
		sampleRate: beep.SampleRate(44100),
		level:      clampLevel(level),
		events:     make(chan Event, 16),
	}
}

// Events returns the channel asynchronous pipeline notifications arrive
// on. Consumed by the session loop only.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Open resolves and decodes a track's source without starting playback.
// Returns ErrUnresolvedSource if the path cannot be opened or decoded.
func (c *Controller) Open(track model.Track) (Source, error) {
	path := model.ResolveURI(track.Path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUnresolvedSource, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", model.ErrUnresolvedSource, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnresolvedSource, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: unsupported format %q", model.ErrUnresolvedSource, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrUnresolvedSource, err)
	}

	return &fileSource{path: path, file: f, streamer: streamer, format: format}, nil
}

// Play tears down any current pipeline and starts playing src. The gen
// value tags all events emitted by this pipeline instance.
func (c *Controller) Play(src Source, gen uint64) error {
	fs, ok := src.(*fileSource)
	if !ok {
		return fmt.Errorf("%w: unknown source type", model.ErrPipelineFatal)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	if !c.initialized {
		if err := speaker.Init(c.sampleRate, c.sampleRate.N(time.Second/10)); err != nil {
			fs.Close()
			return fmt.Errorf("%w: speaker init: %v", model.ErrPipelineFatal, err)
		}
		c.initialized = true
	}

	c.src = fs

	// Resample to the output rate, wrap in Ctrl for pause/resume and
	// Volume for gain.
	resampled := beep.Resample(4, fs.format.SampleRate, c.sampleRate, fs.streamer)
	c.ctrl = &beep.Ctrl{Streamer: resampled, Paused: false}
	c.volume = &effects.Volume{
		Streamer: c.ctrl,
		Base:     2,
		Volume:   levelToVolume(c.level),
		Silent:   c.level == 0,
	}

	speaker.Play(beep.Seq(c.volume, beep.Callback(func() {
		// Runs on the speaker's goroutine; hand off as a message rather
		// than touching shared state here.
		ev := Event{Gen: gen, Type: EventEOS}
		if err := fs.streamer.Err(); err != nil {
			ev = Event{Gen: gen, Type: EventError, Err: fmt.Errorf("%w: %v", model.ErrPipelineFatal, err)}
		}
		select {
		case c.events <- ev:
		default:
			logger.Warn("pipeline event dropped", logger.Uint64("gen", gen))
		}
	})))

	return nil
}

// Pause halts output without tearing down the pipeline.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctrl != nil {
		speaker.Lock()
		c.ctrl.Paused = true
		speaker.Unlock()
	}
}

// Resume restarts output after a pause.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctrl != nil {
		speaker.Lock()
		c.ctrl.Paused = false
		speaker.Unlock()
	}
}

// Stop tears down the pipeline and releases its resources.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked tears down playback. Must be called with c.mu held.
func (c *Controller) stopLocked() {
	if c.ctrl != nil {
		speaker.Lock()
		c.ctrl.Paused = true
		speaker.Unlock()
		speaker.Clear()
	}
	if c.src != nil {
		c.src.Close()
		c.src = nil
	}
	c.ctrl = nil
	c.volume = nil
}

// Seek sets the playback position, clamped to [0, duration].
func (c *Controller) Seek(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src == nil {
		return model.ErrInvalidState
	}

	speaker.Lock()
	defer speaker.Unlock()

	if d < 0 {
		d = 0
	}
	samples := c.src.format.SampleRate.N(d)
	if max := c.src.streamer.Len(); samples > max {
		samples = max
	}
	if err := c.src.streamer.Seek(samples); err != nil {
		return fmt.Errorf("%w: seek: %v", model.ErrPipelineFatal, err)
	}
	return nil
}

// SetVolume sets the output level, clamped to [0.0, 1.0]. Takes effect
// immediately if a pipeline exists and is remembered for the next one.
func (c *Controller) SetVolume(level float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.level = clampLevel(level)
	if c.volume != nil {
		speaker.Lock()
		c.volume.Volume = levelToVolume(c.level)
		c.volume.Silent = c.level == 0
		speaker.Unlock()
	}
	return c.level
}

// Volume returns the current level.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Position returns the current playback position, or zero without a
// pipeline. Never blocks on decoding.
func (c *Controller) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src == nil {
		return 0
	}

	speaker.Lock()
	pos := c.src.streamer.Position()
	speaker.Unlock()

	return c.src.format.SampleRate.D(pos)
}

// Duration returns the total duration of the current source, or zero.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src == nil {
		return 0
	}
	return c.src.Duration()
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// levelToVolume maps a linear 0.0-1.0 level onto the exponential scale
// effects.Volume expects (gain = Base^Volume).
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return 0
	}
	return math.Log2(level)
}
