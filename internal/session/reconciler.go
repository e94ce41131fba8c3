package session

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/metrics"
	"github.com/roomchat/roomchat/internal/protocol"
)

// Observer receives every event the reconciler applies. Calls come from the
// connection reader goroutine, in receipt order.
type Observer interface {
	OnMessage(room string, msg chat.Message)
	OnMembership(room, event string, members []chat.Member)
}

// Reconciler turns inbound frames into log appends and member list
// replacements. It never reorders or batches.
type Reconciler struct {
	room      func() string
	log       *chat.Log
	members   func(event string, members []chat.Member)
	scroll    func()
	observers []Observer
	logger    zerolog.Logger
}

// Handle applies one frame. A frame that cannot be parsed, a membership
// frame whose payload is not an array, or an empty content frame is logged
// and discarded without touching state; the error is returned for the
// caller's information.
func (r *Reconciler) Handle(frame []byte) error {
	parsed, err := protocol.ParseServerFrame(frame)
	if err != nil {
		reason := "unparseable"
		switch {
		case errors.Is(err, protocol.ErrMalformedMembership):
			reason = "malformed_membership"
		case errors.Is(err, protocol.ErrMalformedContent):
			reason = "malformed_content"
		}
		metrics.FramesDiscarded.WithLabelValues(reason).Inc()
		r.logger.Error().Err(err).Str("reason", reason).Msg("[session] inbound frame discarded")
		return err
	}

	room := r.room()
	switch ev := parsed.(type) {
	case protocol.MembershipEvent:
		members := flattenMembers(ev.Records)
		r.members(ev.Type, members)
		for _, o := range r.observers {
			o.OnMembership(room, ev.Type, members)
		}
	case protocol.ContentEvent:
		var msg chat.Message
		if ev.IsMedia() {
			msg = chat.NewMediaMessage(ev.User.Username, ev.MediaURL, ev.Message)
		} else {
			msg = chat.NewTextMessage(ev.User.Username, ev.Message)
		}
		idx := r.log.Append(msg)
		r.logger.Debug().Int("index", idx).Str("kind", string(msg.Kind)).Msg("[session] message appended")
		for _, o := range r.observers {
			o.OnMessage(room, msg)
		}
		if r.scroll != nil {
			r.scroll()
		}
	}
	return nil
}

// flattenMembers builds the member list from a membership payload. Records
// that carry a members field are room records and contribute their members;
// the rest are member records.
func flattenMembers(records []protocol.MemberRecord) []chat.Member {
	out := make([]chat.Member, 0, len(records))
	for _, rec := range records {
		if rec.Members != nil {
			for _, m := range rec.Members {
				out = append(out, chat.Member{Username: m.Username, Avatar: m.Avatar})
			}
			continue
		}
		out = append(out, chat.Member{Username: rec.Username, Avatar: rec.Avatar})
	}
	return out
}
