package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"playd/core/session"
	"playd/logger"

	"github.com/google/uuid"
)

// Server accepts control connections on a UNIX domain socket. Each
// connection reads newline-terminated commands and gets one response line
// per command; a SUBSCRIBE upgrades the connection to an event stream fed
// by the hub.
type Server struct {
	path   string
	daemon *session.Daemon
	hub    *Hub

	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a server bound to the given socket path.
func New(path string, daemon *session.Daemon, hub *Hub) *Server {
	return &Server{
		path:   path,
		daemon: daemon,
		hub:    hub,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Start binds the socket and begins accepting connections. A stale socket
// file left by a crashed daemon is removed if nothing answers on it.
func (s *Server) Start() error {
	if err := s.clearStaleSocket(); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to bind control socket %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		os.Remove(s.path)
		return fmt.Errorf("failed to restrict control socket %s: %w", s.path, err)
	}
	s.ln = ln

	logger.Info("control socket listening", logger.String("path", s.path))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, drops all live connections and removes the
// socket file. Safe to call more than once.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.ln != nil {
			s.ln.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		os.Remove(s.path)
		logger.Info("control socket closed", logger.String("path", s.path))
	})
}

// Path returns the socket path the server is bound to.
func (s *Server) Path() string { return s.path }

func (s *Server) clearStaleSocket() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", s.path)
	}

	// If something answers, another daemon owns this path.
	if conn, err := net.Dial("unix", s.path); err == nil {
		conn.Close()
		return fmt.Errorf("another daemon is already listening on %s", s.path)
	}

	logger.Warn("removing stale control socket", logger.String("path", s.path))
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.path, err)
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept failed", logger.ErrorField(err))
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	id := uuid.NewString()[:8]
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
		logger.Debug("connection closed", logger.String("conn", id))
	}()

	logger.Debug("connection accepted", logger.String("conn", id))

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.EqualFold(line, "SUBSCRIBE") {
			s.streamEvents(conn, id)
			return
		}

		cmd, err := ParseCommand(line)
		var reply string
		if err != nil {
			reply = FormatError(err)
		} else {
			reply = FormatResponse(s.daemon.Do(cmd))
		}

		if _, err := fmt.Fprintln(conn, reply); err != nil {
			logger.Debug("write failed", logger.String("conn", id), logger.ErrorField(err))
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("read failed", logger.String("conn", id), logger.ErrorField(err))
	}
}

// streamEvents turns the connection into a push channel. From here on the
// client only receives JSON event lines; it signals disconnect by closing
// its end.
func (s *Server) streamEvents(conn net.Conn, id string) {
	sub := &Subscriber{ID: id, Send: make(chan []byte, 64)}
	s.hub.Register(sub)
	defer s.hub.Unregister(sub)

	if _, err := fmt.Fprintln(conn, "OK subscribed"); err != nil {
		return
	}

	w := bufio.NewWriter(conn)
	for msg := range sub.Send {
		w.Write(msg)
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			logger.Debug("subscriber write failed", logger.String("conn", id), logger.ErrorField(err))
			return
		}
	}
}
