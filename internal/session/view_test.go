package session

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/credential"
	"github.com/roomchat/roomchat/internal/directory"
	"github.com/roomchat/roomchat/internal/media"
	wsclient "github.com/roomchat/roomchat/internal/ws"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// backend serves the REST endpoints and the room WebSocket.
type backend struct {
	*httptest.Server

	userStatus, joinStatus, roomStatus int

	mu       sync.Mutex
	calls    []string
	wsPaths  []string
	conns    []net.Conn
	received chan map[string]interface{}
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		userStatus: http.StatusOK,
		joinStatus: http.StatusOK,
		roomStatus: http.StatusOK,
		received:   make(chan map[string]interface{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/me", func(w http.ResponseWriter, r *http.Request) {
		b.record("user")
		if b.userStatus != http.StatusOK {
			w.WriteHeader(b.userStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "testUser"})
	})
	mux.HandleFunc("/api/room/add_user/", func(w http.ResponseWriter, r *http.Request) {
		b.record("join")
		w.WriteHeader(b.joinStatus)
	})
	mux.HandleFunc("/api/room/", func(w http.ResponseWriter, r *http.Request) {
		b.record("room")
		if b.roomStatus != http.StatusOK {
			w.WriteHeader(b.roomStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"members":   []map[string]string{{"username": "firstUser"}},
			"room_name": "exampleRoom",
		})
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.wsPaths = append(b.wsPaths, r.URL.EscapedPath())
		b.conns = append(b.conns, conn)
		b.mu.Unlock()

		go func() {
			defer conn.Close()
			for {
				msg, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op != ws.OpText {
					continue
				}
				var m map[string]interface{}
				if json.Unmarshal(msg, &m) == nil {
					b.received <- m
				}
			}
		}()
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *backend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *backend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *backend) connCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *backend) push(t *testing.T, i int, frame string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[i]
	b.mu.Unlock()
	require.NoError(t, wsutil.WriteServerMessage(conn, ws.OpText, []byte(frame)))
}

func (b *backend) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case m := <-b.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("backend received no frame")
		return nil
	}
}

// redirectDialer records the requested URL and dials the test backend
// instead of the configured host.
type redirectDialer struct {
	from, to string

	mu   sync.Mutex
	urls []string
}

func (d *redirectDialer) Dial(ctx context.Context, u string) (net.Conn, io.Reader, error) {
	d.mu.Lock()
	d.urls = append(d.urls, u)
	d.mu.Unlock()
	return wsclient.GobwasDialer{Timeout: time.Second}.Dial(ctx, strings.Replace(u, d.from, d.to, 1))
}

func (d *redirectDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type harness struct {
	view    *View
	backend *backend
	creds   *credential.MemoryStore
	dialer  *redirectDialer

	mu      sync.Mutex
	reasons []string
}

func (h *harness) errors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.reasons...)
}

func newHarness(t *testing.T, configure func(*backend)) *harness {
	t.Helper()
	b := newBackend(t)
	if configure != nil {
		configure(b)
	}

	dirCfg := directory.DefaultConfig()
	dirCfg.BaseURL = b.URL
	creds := credential.NewMemoryStore("tok")

	h := &harness{
		backend: b,
		creds:   creds,
		dialer: &redirectDialer{
			from: "ws://localhost:8000",
			to:   "ws" + strings.TrimPrefix(b.URL, "http"),
		},
	}
	h.view = NewView(Config{
		Room: "exampleRoom",
		WS:   wsclient.DefaultConfig(),
		OnError: func(reason string) {
			h.mu.Lock()
			h.reasons = append(h.reasons, reason)
			h.mu.Unlock()
		},
		Logger: zerolog.Nop(),
	}, Deps{
		Directory:   directory.NewClient(dirCfg, creds),
		Credentials: creds,
		Dialer:      h.dialer,
	})
	t.Cleanup(func() { h.view.Close() })
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.view.Mount(context.Background()))
	require.Eventually(t, func() bool { return h.backend.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Test: Mount
// ---------------------------------------------------------------------------

func TestMount_ReadyAndConnected(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, PhaseLoading, h.view.State().Phase)

	h.mount(t)

	st := h.view.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "testUser", st.CurrentUser)
	assert.Equal(t, "exampleRoom", st.Room)
	assert.Equal(t, 1, st.MemberCount)
	assert.Equal(t, []chat.Member{{Username: "firstUser"}}, st.Members)
	assert.NoError(t, st.Err)
	assert.NotEmpty(t, st.ID)

	assert.Equal(t, []string{"ws://localhost:8000/ws/exampleRoom/testUser"}, h.dialer.dialed())
	assert.Equal(t, []string{"user", "join", "room"}, h.backend.callLog())
	assert.Equal(t, wsclient.StateOpen, h.view.ConnectionState())
}

func TestMount_StepFailures(t *testing.T) {
	tests := []struct {
		name        string
		configure   func(*backend)
		want        error
		calls       []string
		invalidated int
	}{
		{
			name:        "identity",
			configure:   func(b *backend) { b.userStatus = http.StatusUnauthorized },
			want:        ErrIdentity,
			calls:       []string{"user"},
			invalidated: 1,
		},
		{
			name:        "join",
			configure:   func(b *backend) { b.joinStatus = http.StatusInternalServerError },
			want:        ErrJoin,
			calls:       []string{"user", "join"},
			invalidated: 0,
		},
		{
			name:        "room",
			configure:   func(b *backend) { b.roomStatus = http.StatusNotFound },
			want:        ErrRoomFetch,
			calls:       []string{"user", "join", "room"},
			invalidated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.configure)

			err := h.view.Mount(context.Background())
			require.ErrorIs(t, err, tt.want)

			st := h.view.State()
			assert.Equal(t, PhaseErrored, st.Phase)
			assert.ErrorIs(t, st.Err, tt.want)
			assert.Equal(t, tt.calls, h.backend.callLog())
			assert.Equal(t, tt.invalidated, h.creds.Invalidations())
			assert.Empty(t, h.dialer.dialed(), "no socket before the room is known")
			assert.Equal(t, wsclient.StateAbsent, h.view.ConnectionState())
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Sending
// ---------------------------------------------------------------------------

func TestSubmit_TextFrameAndReset(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.True(t, h.view.TypeText("Hello!"))
	require.NoError(t, h.view.Submit(context.Background()))

	m := h.backend.next(t)
	assert.Equal(t, "Hello!", m["message"])
	assert.Equal(t, map[string]interface{}{"username": "testUser"}, m["user"])
	assert.Equal(t, "exampleRoom", m["room_name"])

	d := h.view.Draft()
	assert.Equal(t, "", d.Text)
	assert.Nil(t, d.Attachment)
	assert.False(t, d.SendEnabled)
	assert.Equal(t, 1, h.backend.connCount(), "open connection is reused")
}

func TestSubmit_FileFrame(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	a := media.NewBytesAttachment("song.mp3", "audio/mp3", []byte("hello"))
	require.NoError(t, h.view.AttachFile(context.Background(), a))
	h.view.TypeText("listen")
	require.NoError(t, h.view.Submit(context.Background()))

	m := h.backend.next(t)
	assert.Equal(t, "file", m["type"])
	assert.Equal(t, "aGVsbG8=", m["content"])
	assert.Equal(t, "audio/mp3", m["fileType"])
	assert.Equal(t, "listen", m["message"])
	assert.Nil(t, h.view.Draft().Attachment)
}

func TestDetachFile_KeepsCaption(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	a := media.NewBytesAttachment("song.mp3", "audio/mp3", []byte("hello"))
	require.NoError(t, h.view.AttachFile(context.Background(), a))
	h.view.TypeText("listen")
	h.view.DetachFile()

	d := h.view.Draft()
	assert.Nil(t, d.Attachment)
	assert.Equal(t, "listen", d.Text)
	assert.True(t, d.SendEnabled)

	require.NoError(t, h.view.Submit(context.Background()))
	m := h.backend.next(t)
	assert.Equal(t, "text", m["type"])
	assert.Equal(t, "listen", m["message"])
}

func TestSubmit_NothingToSendIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.view.TypeText("   ")
	require.NoError(t, h.view.Submit(context.Background()))

	select {
	case m := <-h.backend.received:
		t.Fatalf("unexpected frame %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmit_BeforeMountIsNotReady(t *testing.T) {
	h := newHarness(t, nil)
	h.view.TypeText("early")

	err := h.view.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "early", h.view.Draft().Text)
}

func TestSubmit_ReconnectsAfterRemoteClose(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.backend.mu.Lock()
	first := h.backend.conns[0]
	h.backend.mu.Unlock()
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	require.NoError(t, wsutil.WriteServerMessage(first, ws.OpClose, body))
	require.Eventually(t, func() bool {
		return h.view.ConnectionState() == wsclient.StateClosed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, PhaseReady, h.view.State().Phase, "transport errors do not interrupt the session")

	h.view.TypeText("again")
	require.NoError(t, h.view.Submit(context.Background()))

	assert.Equal(t, "again", h.backend.next(t)["message"])
	assert.Equal(t, 2, h.backend.connCount())
}

func TestRequestVideoChat(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.view.RequestVideoChat(context.Background()))

	assert.Equal(t, VideoChatNotice, h.backend.next(t)["message"])
	assert.Equal(t, PhaseVideoHandoff, h.view.State().Phase)

	h.view.TypeText("still here")
	require.NoError(t, h.view.Submit(context.Background()))
	assert.Equal(t, "still here", h.backend.next(t)["message"])
}

// ---------------------------------------------------------------------------
// Test: Attachments
// ---------------------------------------------------------------------------

type declared struct {
	name, ct string
	size     int64
}

func (d declared) Name() string                     { return d.name }
func (d declared) ContentType() string              { return d.ct }
func (d declared) Size() int64                      { return d.size }
func (d declared) Open() (io.ReadSeekCloser, error) { return nil, io.ErrUnexpectedEOF }

func TestAttachFile_OversizedVideoRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	err := h.view.AttachFile(context.Background(), declared{"movie.mp4", "video/mp4", 51 * media.MiB})
	require.ErrorIs(t, err, media.ErrVideoTooLarge)

	assert.Equal(t, []string{"video size exceeds maximum (50 MB)"}, h.errors())
	assert.Nil(t, h.view.Draft().Attachment)
	assert.False(t, h.view.Draft().SendEnabled)
}

// ---------------------------------------------------------------------------
// Test: Inbound frames
// ---------------------------------------------------------------------------

func TestInboundFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.backend.push(t, 0, `{"type":"entrance","new_room_obj":[{"username":"firstUser"},{"username":"testUser"}]}`)
	require.Eventually(t, func() bool { return h.view.State().MemberCount == 2 }, 2*time.Second, 10*time.Millisecond)

	h.backend.push(t, 0, `{"type":"dismissal","new_room_obj":{"members":[]}}`)
	h.backend.push(t, 0, `{"message":"Hello!","media_file_url":null,"user":{"username":"firstUser"}}`)
	h.backend.push(t, 0, `{"message":"","media_file_url":"/media/clip.mp4","user":{"username":"testUser"}}`)

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)

	st := h.view.State()
	assert.Equal(t, 2, st.MemberCount, "non-array membership payload is discarded")
	assert.Equal(t, "testUser", st.Members[1].Username)

	msgs := h.view.Messages()
	assert.Equal(t, chat.NewTextMessage("firstUser", "Hello!"), msgs[0])
	assert.Equal(t, chat.KindMedia, msgs[1].Kind)
	assert.Equal(t, media.CategoryVideo, msgs[1].Category)
	assert.False(t, msgs[1].HasBubble())
}

// ---------------------------------------------------------------------------
// Test: Close
// ---------------------------------------------------------------------------

func TestClose_IgnoresLateFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.backend.push(t, 0, `{"message":"before","user":{"username":"firstUser"}}`)
	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.view.Close())
	require.NoError(t, h.view.Close())

	h.backend.mu.Lock()
	conn := h.backend.conns[0]
	h.backend.mu.Unlock()
	_ = wsutil.WriteServerMessage(conn, ws.OpText, []byte(`{"message":"after","user":{"username":"firstUser"}}`))
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, h.view.Messages(), 1)
	assert.Equal(t, wsclient.StateAbsent, h.view.ConnectionState())

	h.view.TypeText("too late")
	assert.ErrorIs(t, h.view.Submit(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.view.Mount(context.Background()), ErrClosed)
}
