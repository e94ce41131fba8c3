// Package messaging mirrors a chat session's reconciled room events onto
// NATS so other local processes can follow a room without joining it.
//
// Events are JSON Event values published on roomchat.room.<room>.<kind>,
// where kind is "message" or "membership". Every event carries the id of
// the session that observed it, so a follower watching a room that several
// sessions mirror can tell the copies apart. `roomchat tail <room>` is the
// stock follower.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSClient is the connection used both to mirror events and to follow
// rooms. It implements Publisher.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger

	mu        sync.Mutex
	following map[string]*nats.Subscription // keyed by room
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string // nats://localhost:4222
	Name          string // client name shown in server monitoring
	ReconnectWait time.Duration
	MaxReconnects int // -1 retries forever
}

// DefaultNATSConfig returns the settings used when only --nats-url is given.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "roomchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to the server named by config. Losing the server
// later is not fatal: the client reconnects in the background and mirrored
// events published meanwhile are buffered by nats.go.
func NewNATSClient(config NATSConfig, logger zerolog.Logger) (*NATSClient, error) {
	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("[nats] mirror disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] mirror reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", config.URL, err)
	}

	logger.Info().Str("url", nc.ConnectedUrl()).Msg("[nats] connected")
	return &NATSClient{
		conn:      nc,
		log:       logger,
		following: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends one encoded event.
func (c *NATSClient) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Follow delivers every event mirrored for room, of any kind and from any
// session, to fn. Payloads that do not decode are logged and skipped. A
// room can be followed once at a time.
func (c *NATSClient) Follow(room string, fn func(Event)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.following[room]; ok {
		return fmt.Errorf("nats: already following %s", room)
	}

	subject := RoomSubject(room, "")
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject).Msg("[nats] undecodable event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	// Make sure the server knows about the subscription before returning,
	// so events published right after Follow are not missed.
	if err := c.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.following[room] = sub
	c.log.Info().Str("subject", subject).Msg("[nats] following")
	return nil
}

// Unfollow stops delivering events for room.
func (c *NATSClient) Unfollow(room string) error {
	c.mu.Lock()
	sub, ok := c.following[room]
	delete(c.following, room)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("nats: not following %s", room)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", sub.Subject, err)
	}
	return nil
}

// Close drains followed rooms and pending mirrored events, then closes the
// connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	for room, sub := range c.following {
		if err := sub.Drain(); err != nil {
			c.log.Warn().Err(err).Str("room", room).Msg("[nats] drain failed")
		}
	}
	c.following = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("[nats] connection drain failed")
	}
}
