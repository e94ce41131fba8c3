package messaging

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/chat"
)

// Subject layout for mirrored room events.
const (
	SubjectPrefix      = "roomchat.room" // + .<room>.<kind>
	KindMessage        = "message"
	KindMembership     = "membership"
	subjectWildcardAll = ">"
)

// Publisher is the publishing half of NATSClient.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON payload of a mirrored event.
type Event struct {
	Session string        `json:"session"`
	Room    string        `json:"room"`
	Kind    string        `json:"kind"`
	Event   string        `json:"event,omitempty"` // entrance | dismissal
	Message *chat.Message `json:"message,omitempty"`
	Members []chat.Member `json:"members,omitempty"`
	Ts      int64         `json:"ts"`
}

// Mirror republishes every reconciled message and membership change of one
// session. Publish failures are logged and never block the reconciler.
type Mirror struct {
	pub     Publisher
	session string
	log     zerolog.Logger
	now     func() time.Time
}

// NewMirror creates a Mirror tagging events with sessionID.
func NewMirror(pub Publisher, sessionID string, logger zerolog.Logger) *Mirror {
	return &Mirror{pub: pub, session: sessionID, log: logger, now: time.Now}
}

// OnMessage publishes msg to roomchat.room.<room>.message.
func (m *Mirror) OnMessage(room string, msg chat.Message) {
	m.publish(Event{Room: room, Kind: KindMessage, Message: &msg})
}

// OnMembership publishes the new member list to
// roomchat.room.<room>.membership.
func (m *Mirror) OnMembership(room, event string, members []chat.Member) {
	m.publish(Event{Room: room, Kind: KindMembership, Event: event, Members: members})
}

func (m *Mirror) publish(ev Event) {
	ev.Session = m.session
	ev.Ts = m.now().Unix()

	data, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Msg("[nats] marshal mirrored event failed")
		return
	}
	subject := RoomSubject(ev.Room, ev.Kind)
	if err := m.pub.Publish(subject, data); err != nil {
		m.log.Warn().Err(err).Str("subject", subject).Msg("[nats] publish failed")
	}
}

// RoomSubject returns the subject for kind events of room. An empty kind
// yields the wildcard subject matching every kind.
func RoomSubject(room, kind string) string {
	if kind == "" {
		kind = subjectWildcardAll
	}
	return SubjectPrefix + "." + subjectToken(room) + "." + kind
}

// subjectToken makes room usable as a single NATS subject token.
func subjectToken(room string) string {
	if room == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, room)
}

// DecodeEvent parses a mirrored event payload.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
