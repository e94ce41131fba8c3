package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/chat"
)

// Sink persists entries. *Store is the production Sink.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder archives reconciled events without blocking the connection
// reader: entries are queued and written by one background goroutine. When
// the queue is full the entry is dropped and logged.
type Recorder struct {
	sink    Sink
	session string
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// NewRecorder starts a Recorder for one session.
func NewRecorder(sink Sink, sessionID string, queueSize int, logger zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:    sink,
		session: sessionID,
		timeout: 3 * time.Second,
		log:     logger,
		queue:   make(chan Entry, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// OnMessage queues an appended message.
func (r *Recorder) OnMessage(room string, msg chat.Message) {
	r.enqueue(Entry{
		Room:     room,
		Kind:     string(msg.Kind),
		Author:   msg.Author,
		Body:     msg.Body,
		MediaURL: msg.MediaURL,
		Category: string(msg.Category),
	})
}

// OnMembership queues a member list replacement.
func (r *Recorder) OnMembership(room, event string, members []chat.Member) {
	r.enqueue(Entry{Room: room, Kind: KindMembership, Body: event, Members: members})
}

func (r *Recorder) enqueue(e Entry) {
	e.SessionID = r.session
	e.ReceivedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Debug().Str("room", e.Room).Msg("[transcript] recorder closed, entry dropped")
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn().Str("room", e.Room).Msg("[transcript] queue full, entry dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Append(ctx, e); err != nil {
			r.log.Error().Err(err).Str("room", e.Room).Msg("[transcript] append failed")
		}
		cancel()
	}
}

// Close stops accepting entries and waits until the queue is written.
// Entries offered after Close are dropped.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
