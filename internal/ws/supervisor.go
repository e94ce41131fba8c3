// Package ws supervises the client WebSocket of one chat view: it opens the
// room connection lazily, tracks its state, delivers inbound frames in
// receipt order and reconnects on the next send after a close or error.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/metrics"
	"github.com/roomchat/roomchat/internal/protocol"
)

// ErrClosed is returned by a Supervisor that has been closed.
var ErrClosed = errors.New("ws: supervisor closed")

// Config holds tunable parameters for the connection supervisor.
type Config struct {
	BaseURL      string        // endpoint prefix, e.g. "ws://localhost:8000/ws"
	DialTimeout  time.Duration // handshake timeout
	WriteTimeout time.Duration // per-frame write deadline, 0 disables
	PingInterval time.Duration // keepalive ping period, 0 disables
}

// DefaultConfig returns a Config pointing at a local development server.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "ws://localhost:8000/ws",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Hooks are invoked from supervisor goroutines. OnFrame is called from the
// connection's single reader goroutine, in receipt order. Any hook may be nil.
type Hooks struct {
	OnOpen  func(c *Connection)
	OnFrame func(data []byte)
	OnClose func(err error) // remote close frame
	OnError func(err error) // unexpected read or write failure
}

// Supervisor owns at most one live connection. Its state machine is
// Absent -> Open -> Closed -> Open: EnsureConnection dials only when there is
// no open connection, and nothing reconnects on its own.
type Supervisor struct {
	cfg    Config
	hooks  Hooks
	dialer Dialer
	log    zerolog.Logger

	mu     sync.Mutex
	conn   *Connection
	closed bool
}

// NewSupervisor creates a Supervisor that dials with GobwasDialer.
func NewSupervisor(cfg Config, hooks Hooks, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		hooks:  hooks,
		dialer: GobwasDialer{Timeout: cfg.DialTimeout},
		log:    logger,
	}
}

// SetDialer replaces the dialer. It must be called before the first
// EnsureConnection.
func (s *Supervisor) SetDialer(d Dialer) {
	s.mu.Lock()
	s.dialer = d
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return StateAbsent
	}
	return s.conn.State()
}

// EnsureConnection returns the open connection for (username, room),
// dialing a new one when none is open. Calling it while the connection is
// open is a no-op. A connection to a different target is closed before the
// new one is dialed.
func (s *Supervisor) EnsureConnection(ctx context.Context, username, room string) (*Connection, error) {
	c, opened, err := s.ensure(ctx, username, room)
	if err != nil {
		return nil, err
	}
	if opened && s.hooks.OnOpen != nil {
		s.hooks.OnOpen(c)
	}
	return c, nil
}

func (s *Supervisor) ensure(ctx context.Context, username, room string) (*Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	if c := s.conn; c != nil && c.Open() {
		if c.Room == room && c.Username == username {
			return c, false, nil
		}
		s.log.Info().Str("conn", c.ID).Str("room", c.Room).Msg("[ws] closing connection before switching room")
		c.retire()
	}

	url := Endpoint(s.cfg.BaseURL, room, username)
	netConn, r, err := s.dialer.Dial(ctx, url)
	if err != nil {
		if s.conn != nil {
			metrics.ConnectionState.Set(float64(StateClosed))
		}
		s.log.Warn().Err(err).Str("url", url).Msg("[ws] dial failed")
		return nil, false, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	c := newConnection(uuid.NewString(), url, room, username, netConn, r, s.cfg.WriteTimeout)
	s.conn = c
	metrics.ConnectionsOpened.Inc()
	metrics.ConnectionState.Set(float64(StateOpen))
	s.log.Info().Str("conn", c.ID).Str("url", url).Msg("[ws] connection open")

	go s.readLoop(c)
	if s.cfg.PingInterval > 0 {
		go s.keepalive(c, s.cfg.PingInterval)
	}
	return c, true, nil
}

// Send ensures a connection for (username, room), JSON-encodes payload and
// writes it as one text frame. A write failure closes the connection; the
// next Send dials again.
func (s *Supervisor) Send(ctx context.Context, username, room string, payload interface{}) error {
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	c, err := s.EnsureConnection(ctx, username, room)
	if err != nil {
		return err
	}
	if err := c.WriteMessage(data); err != nil {
		s.log.Warn().Err(err).Str("conn", c.ID).Msg("[ws] write failed")
		s.fail(c, err)
		return fmt.Errorf("ws: write: %w", err)
	}
	metrics.FramesTotal.WithLabelValues("sent").Inc()
	return nil
}

// Close retires the current connection and makes the Supervisor terminal.
// It returns once the reader goroutine has exited, so no hook runs after
// Close. Frames already in flight are not delivered. Close must not be
// called from a hook.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.closed = true
	s.mu.Unlock()

	if c != nil {
		c.retire()
		<-c.ReaderDone()
		s.log.Info().Str("conn", c.ID).Dur("age", time.Since(c.CreatedAt)).Msg("[ws] connection closed locally")
	}
	metrics.ConnectionState.Set(float64(StateAbsent))
	return nil
}

// readLoop delivers text frames from c until it closes. Control frames are
// answered by wsutil.
func (s *Supervisor) readLoop(c *Connection) {
	defer close(c.readerDone)
	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			if c.retired.Load() {
				return
			}
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				s.remoteClose(c, err)
			} else {
				s.fail(c, err)
			}
			return
		}
		if c.retired.Load() {
			return
		}
		if op != ws.OpText {
			continue
		}
		metrics.FramesTotal.WithLabelValues("received").Inc()
		if s.hooks.OnFrame != nil {
			s.hooks.OnFrame(data)
		}
	}
}

func (s *Supervisor) remoteClose(c *Connection, err error) {
	if !c.markClosed() {
		return
	}
	_ = c.conn.Close()
	s.transitioned(c)
	s.log.Info().Str("conn", c.ID).Str("reason", err.Error()).Dur("age", time.Since(c.CreatedAt)).Msg("[ws] connection closed by server")
	if s.hooks.OnClose != nil {
		s.hooks.OnClose(err)
	}
}

// fail forces c closed after an unexpected transport error.
func (s *Supervisor) fail(c *Connection, err error) {
	if !c.markClosed() {
		return
	}
	_ = c.conn.Close()
	if c.retired.Load() {
		return
	}
	s.transitioned(c)
	s.log.Error().Err(err).Str("conn", c.ID).Dur("age", time.Since(c.CreatedAt)).Msg("[ws] connection error")
	if s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

func (s *Supervisor) transitioned(c *Connection) {
	s.mu.Lock()
	current := s.conn == c
	s.mu.Unlock()
	if current {
		metrics.ConnectionState.Set(float64(StateClosed))
	}
}
