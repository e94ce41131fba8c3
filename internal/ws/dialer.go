package ws

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/ws"
)

// Dialer opens a client WebSocket. The returned reader must be used for all
// reads since it may hold bytes buffered during the handshake.
type Dialer interface {
	Dial(ctx context.Context, url string) (net.Conn, io.Reader, error)
}

// GobwasDialer dials with github.com/gobwas/ws.
type GobwasDialer struct {
	Timeout time.Duration
	Header  http.Header // extra handshake headers, e.g. Authorization
}

func (d GobwasDialer) Dial(ctx context.Context, u string) (net.Conn, io.Reader, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}
	conn, br, _, err := dialer.Dial(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	if br != nil {
		return conn, io.MultiReader(br, conn), nil
	}
	return conn, conn, nil
}

// Endpoint builds the room endpoint base/{room}/{username}, escaping both
// path segments.
func Endpoint(base, room, username string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(room) + "/" + url.PathEscape(username)
}
