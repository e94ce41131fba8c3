package ws

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// State is the lifecycle state of the supervised connection.
type State int32

const (
	StateAbsent State = iota
	StateOpen
	StateClosed // closed or errored
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is one client WebSocket to a room endpoint, with a write mutex
// serializing outbound frames.
type Connection struct {
	ID        string    // connection ID (UUID), for logs
	URL       string    // endpoint dialed
	Room      string    // room the endpoint addresses
	Username  string    // user the endpoint addresses
	CreatedAt time.Time // when the handshake completed

	conn         net.Conn
	rw           io.ReadWriter
	writeTimeout time.Duration
	writeMu      sync.Mutex

	state      atomic.Int32
	retired    atomic.Bool
	done       chan struct{}
	readerDone chan struct{}
	once       sync.Once
}

func newConnection(id, url, room, username string, conn net.Conn, r io.Reader, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		URL:          url,
		Room:         room,
		Username:     username,
		CreatedAt:    time.Now(),
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		readerDone:   make(chan struct{}),
	}
	if r == nil {
		r = conn
	}
	c.rw = &lockedReadWriter{r: r, c: c}
	c.state.Store(int32(StateOpen))
	return c
}

// State reports whether the connection is still open.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Open is shorthand for State() == StateOpen.
func (c *Connection) Open() bool {
	return c.State() == StateOpen
}

// Done is closed once the connection is no longer open.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ReaderDone is closed once the reader goroutine has returned and no
// further frame can be delivered from this connection.
func (c *Connection) ReaderDone() <-chan struct{} {
	return c.readerDone
}

// WriteMessage sends a WebSocket text frame. The write mutex ensures that
// concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	return c.write(ws.OpText, data)
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	return c.write(ws.OpPing, nil)
}

func (c *Connection) write(op ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientMessage(c.conn, op, data)
}

// markClosed moves the connection to StateClosed. It returns true for the
// single caller that performed the transition.
func (c *Connection) markClosed() bool {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return false
	}
	c.once.Do(func() { close(c.done) })
	return true
}

// retire closes the connection from our side. Frames read afterwards are
// dropped by the reader.
func (c *Connection) retire() {
	c.retired.Store(true)
	if !c.markClosed() {
		return
	}
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	_ = c.write(ws.OpClose, body)
	_ = c.conn.Close()
}

// lockedReadWriter routes control-frame replies written by the reader
// through the connection write mutex.
type lockedReadWriter struct {
	r io.Reader
	c *Connection
}

func (l *lockedReadWriter) Read(p []byte) (int, error) {
	return l.r.Read(p)
}

func (l *lockedReadWriter) Write(p []byte) (int, error) {
	l.c.writeMu.Lock()
	defer l.c.writeMu.Unlock()
	return l.c.conn.Write(p)
}
