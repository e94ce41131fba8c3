package chat

import "sync"

// Log is the append-only message history of one mounted room, kept in
// arrival order. It is goroutine-safe.
type Log struct {
	mu    sync.RWMutex
	items []Message
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a message at the end and returns its index.
func (l *Log) Append(msg Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, msg)
	return len(l.items) - 1
}

// Messages returns a copy of the log, oldest first. Never nil.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
