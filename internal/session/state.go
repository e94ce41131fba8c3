// Package session runs one mounted chat view: it bootstraps identity and
// room membership, supervises the room connection, reconciles inbound frames
// into the message log and sends what the composer holds.
package session

import (
	"errors"

	"github.com/roomchat/roomchat/internal/chat"
)

var (
	// ErrIdentity means the stored credential did not resolve to a user.
	ErrIdentity = errors.New("session: identity lookup failed")

	// ErrJoin means the user could not be added to the room.
	ErrJoin = errors.New("session: join room failed")

	// ErrRoomFetch means the room snapshot could not be fetched.
	ErrRoomFetch = errors.New("session: room fetch failed")

	// ErrNotReady is returned when sending before the session is ready.
	ErrNotReady = errors.New("session: not ready")

	// ErrClosed is returned by a closed view.
	ErrClosed = errors.New("session: view closed")
)

// Phase is the lifecycle stage of a session. Exactly one holds at a time.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseVideoHandoff
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseVideoHandoff:
		return "video_handoff"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}

// canSend reports whether frames may be sent in phase p.
func (p Phase) canSend() bool {
	return p == PhaseReady || p == PhaseVideoHandoff
}

// State is a snapshot of one mounted session. Err is set only in
// PhaseErrored.
type State struct {
	ID          string
	Phase       Phase
	CurrentUser string
	Avatar      string
	Room        string
	Members     []chat.Member
	MemberCount int
	Err         error
}

func (s State) clone() State {
	out := s
	out.Members = append([]chat.Member(nil), s.Members...)
	return out
}
