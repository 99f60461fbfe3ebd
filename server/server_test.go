package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"playd/core/pipeline"
	"playd/core/queue"
	"playd/core/session"
	"playd/model"
)

type stubSource struct{}

func (stubSource) Duration() time.Duration { return 3 * time.Second }
func (stubSource) Close() error            { return nil }

// stubPipeline satisfies session.Pipeline without an audio device.
type stubPipeline struct {
	events chan pipeline.Event
	volume float64
}

func newStubPipeline() *stubPipeline {
	return &stubPipeline{events: make(chan pipeline.Event, 16)}
}

func (s *stubPipeline) Open(track model.Track) (pipeline.Source, error) {
	if strings.HasPrefix(track.Path, "bad://") {
		return nil, fmt.Errorf("%w: cannot open %s", model.ErrUnresolvedSource, track.Path)
	}
	return stubSource{}, nil
}

func (s *stubPipeline) Play(src pipeline.Source, gen uint64) error { return nil }
func (s *stubPipeline) Pause()                                     {}
func (s *stubPipeline) Resume()                                    {}
func (s *stubPipeline) Stop()                                      {}
func (s *stubPipeline) Seek(d time.Duration) error                 { return nil }
func (s *stubPipeline) SetVolume(level float64) float64            { s.volume = level; return level }
func (s *stubPipeline) Volume() float64                            { return s.volume }
func (s *stubPipeline) Position() time.Duration                    { return 0 }
func (s *stubPipeline) Duration() time.Duration                    { return 0 }
func (s *stubPipeline) Events() <-chan pipeline.Event              { return s.events }

func startServer(t *testing.T) *Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "playd.sock")
	d := session.NewDaemon(newStubPipeline(), queue.New(10), 0.8, session.WithPositionInterval(time.Hour))
	hub := NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	srv := New(path, d, hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		srv.Stop()
		hub.Stop()
		cancel()
	})
	return srv
}

func dialServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", srv.Path())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	if _, err := fmt.Fprintln(conn, line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", line, err)
	}
	return strings.TrimRight(reply, "\n")
}

func TestPingPong(t *testing.T) {
	srv := startServer(t)
	conn, r := dialServer(t, srv)

	if got := roundTrip(t, conn, r, "PING"); got != "OK pong" {
		t.Errorf("PING reply = %q", got)
	}
}

func TestLoadBadSourceOverSocket(t *testing.T) {
	srv := startServer(t)
	conn, r := dialServer(t, srv)

	got := roundTrip(t, conn, r, "LOAD bad://nonexistent")
	if !strings.HasPrefix(got, "ERROR UnresolvedSourceError ") {
		t.Fatalf("LOAD reply = %q", got)
	}

	status := roundTrip(t, conn, r, "STATUS")
	if !strings.HasPrefix(status, "OK ") || !strings.Contains(status, `"state":"stopped"`) {
		t.Errorf("STATUS after failed load = %q, want stopped", status)
	}
}

func TestPauseWhileStoppedOverSocket(t *testing.T) {
	srv := startServer(t)
	conn, r := dialServer(t, srv)

	got := roundTrip(t, conn, r, "PAUSE")
	if !strings.HasPrefix(got, "ERROR InvalidStateError ") {
		t.Fatalf("PAUSE reply = %q", got)
	}
	if status := roundTrip(t, conn, r, "STATUS"); !strings.Contains(status, `"state":"stopped"`) {
		t.Errorf("STATUS = %q, want stopped", status)
	}
}

func TestMalformedCommandDoesNotAlterState(t *testing.T) {
	srv := startServer(t)
	conn, r := dialServer(t, srv)

	roundTrip(t, conn, r, "ENQUEUE /a.mp3")
	if got := roundTrip(t, conn, r, "FROB 42"); !strings.HasPrefix(got, "ERROR ProtocolError ") {
		t.Fatalf("FROB reply = %q", got)
	}
	if status := roundTrip(t, conn, r, "STATUS"); !strings.Contains(status, `"queueLength":1`) {
		t.Errorf("STATUS = %q, want queueLength 1", status)
	}
}

func TestQueueCommandsOverSocket(t *testing.T) {
	srv := startServer(t)
	conn, r := dialServer(t, srv)

	if got := roundTrip(t, conn, r, "ENQUEUE /a.mp3 /b.mp3"); got != "OK 2" {
		t.Fatalf("ENQUEUE reply = %q", got)
	}
	if got := roundTrip(t, conn, r, "REPEAT all"); got != "OK all" {
		t.Errorf("REPEAT reply = %q", got)
	}
	if got := roundTrip(t, conn, r, "SHUFFLE on"); got != "OK shuffle" {
		t.Errorf("SHUFFLE reply = %q", got)
	}

	queueLine := roundTrip(t, conn, r, "QUEUE")
	for _, want := range []string{`"/a.mp3"`, `"/b.mp3"`} {
		if !strings.Contains(queueLine, want) {
			t.Errorf("QUEUE reply %q missing %s", queueLine, want)
		}
	}

	if got := roundTrip(t, conn, r, "CLEAR"); got != "OK" {
		t.Errorf("CLEAR reply = %q", got)
	}
	if status := roundTrip(t, conn, r, "STATUS"); !strings.Contains(status, `"queueLength":0`) {
		t.Errorf("STATUS = %q, want empty queue", status)
	}
}

func TestCommandsAreConnectionAgnostic(t *testing.T) {
	srv := startServer(t)
	c1, r1 := dialServer(t, srv)
	c2, r2 := dialServer(t, srv)

	roundTrip(t, c1, r1, "ENQUEUE /a.mp3")
	if status := roundTrip(t, c2, r2, "STATUS"); !strings.Contains(status, `"queueLength":1`) {
		t.Errorf("second client STATUS = %q, want shared queue visible", status)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	srv := startServer(t)
	sub, subReader := dialServer(t, srv)

	if got := roundTrip(t, sub, subReader, "SUBSCRIBE"); got != "OK subscribed" {
		t.Fatalf("SUBSCRIBE reply = %q", got)
	}

	ctl, ctlReader := dialServer(t, srv)
	roundTrip(t, ctl, ctlReader, "LOAD bad://nonexistent")

	// A failed load publishes state_changed and error events.
	sawError := false
	sub.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 5 && !sawError; i++ {
		line, err := subReader.ReadString('\n')
		if err != nil {
			break
		}
		if !strings.Contains(line, `"event":`) || !strings.Contains(line, `"timestamp":`) {
			t.Fatalf("event line %q missing envelope fields", line)
		}
		if strings.Contains(line, `"event":"error"`) {
			sawError = true
		}
	}
	if !sawError {
		t.Error("no error event received after failed load")
	}
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playd.sock")

	// Leave a socket file behind with nothing listening on it.
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket not left behind: %v", err)
	}

	d := session.NewDaemon(newStubPipeline(), queue.New(10), 0.8)
	hub := NewHub()
	go hub.Run()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	srv := New(path, d, hub)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start over stale socket: %v", err)
	}
	defer func() {
		srv.Stop()
		hub.Stop()
	}()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial after stale replacement: %v", err)
	}
	conn.Close()
}

func TestStartRefusesLivePath(t *testing.T) {
	srv := startServer(t)

	other := New(srv.Path(), nil, nil)
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("second server bound the same live socket")
	}
}

func TestStartRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playd.sock")
	if err := os.WriteFile(path, []byte("not a socket"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := New(path, nil, nil)
	if err := srv.Start(); err == nil {
		srv.Stop()
		t.Fatal("server bound over a regular file")
	}
}
