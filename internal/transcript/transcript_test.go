package transcript

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomchat/roomchat/internal/chat"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memorySink) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// ---------------------------------------------------------------------------
// Test: Recorder
// ---------------------------------------------------------------------------

func TestRecorder_WritesInOrder(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, "sess", 16, zerolog.Nop())

	r.OnMessage("room", chat.NewTextMessage("a", "one"))
	r.OnMembership("room", "entrance", []chat.Member{{Username: "a"}, {Username: "b"}})
	r.OnMessage("room", chat.NewMediaMessage("b", "/m/x.mp4", "clip"))
	r.Close()

	require.Len(t, sink.entries, 3)
	assert.Equal(t, "text", sink.entries[0].Kind)
	assert.Equal(t, "one", sink.entries[0].Body)
	assert.Equal(t, KindMembership, sink.entries[1].Kind)
	assert.Equal(t, "entrance", sink.entries[1].Body)
	assert.Len(t, sink.entries[1].Members, 2)
	assert.Equal(t, "media", sink.entries[2].Kind)
	assert.Equal(t, "video", sink.entries[2].Category)
	for _, e := range sink.entries {
		assert.Equal(t, "sess", e.SessionID)
		assert.False(t, e.ReceivedAt.IsZero())
	}
}

type blockingSink struct {
	release chan struct{}
	count   int
	mu      sync.Mutex
}

func (b *blockingSink) Append(context.Context, Entry) error {
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(sink, "sess", 1, zerolog.Nop())

	// One entry is held by the writer, one fills the queue, the rest drop.
	for i := 0; i < 10; i++ {
		r.OnMessage("room", chat.NewTextMessage("a", "x"))
		time.Sleep(time.Millisecond)
	}
	close(sink.release)
	r.Close()

	assert.LessOrEqual(t, sink.count, 2)
	assert.GreaterOrEqual(t, sink.count, 1)
}

// ---------------------------------------------------------------------------
// Test: PostgreSQL store
// ---------------------------------------------------------------------------

// newTestStore requires PostgreSQL; set ROOMCHAT_TEST_DSN to run.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ROOMCHAT_TEST_DSN")
	if dsn == "" {
		t.Skip("ROOMCHAT_TEST_DSN not set")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "second run is a no-op")
	t.Cleanup(func() {
		db.Exec(`DELETE FROM transcript_entries WHERE room LIKE 'test_%'`)
		db.Close()
	})
	return NewStore(db)
}

func TestStore_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	room := "test_" + uuid.NewString()
	session := uuid.NewString()
	base := time.Now().Add(-time.Minute)

	entries := []Entry{
		{SessionID: session, Room: room, Kind: "text", Author: "a", Body: "one", ReceivedAt: base},
		{SessionID: session, Room: room, Kind: KindMembership, Body: "entrance", Members: []chat.Member{{Username: "a"}}, ReceivedAt: base.Add(time.Second)},
		{SessionID: session, Room: room, Kind: "media", Author: "b", MediaURL: "/m/x.png", Category: "image", ReceivedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	got, err := s.Recent(ctx, room, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KindMembership, got[0].Kind)
	assert.Equal(t, []chat.Member{{Username: "a"}}, got[0].Members)
	assert.Equal(t, "/m/x.png", got[1].MediaURL)
}

func TestEntry_MessageRoundTrip(t *testing.T) {
	msg := chat.NewMediaMessage("b", "/m/song.mp3", "listen")
	sink := &memorySink{}
	r := NewRecorder(sink, "sess", 4, zerolog.Nop())
	r.OnMessage("room", msg)
	r.Close()

	require.Len(t, sink.entries, 1)
	assert.Equal(t, msg, sink.entries[0].Message())
}

func TestRecorder_DropsAfterClose(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, "sess", 4, zerolog.Nop())
	r.OnMessage("room", chat.NewTextMessage("a", "kept"))
	r.Close()

	assert.NotPanics(t, func() {
		r.OnMessage("room", chat.NewTextMessage("a", "late"))
		r.OnMembership("room", "dismissal", nil)
	})
	r.Close()

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "kept", sink.entries[0].Body)
}
