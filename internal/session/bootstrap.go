package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/credential"
	"github.com/roomchat/roomchat/internal/directory"
	"github.com/roomchat/roomchat/internal/metrics"
)

// Directory is the subset of the REST client the bootstrapper needs.
type Directory interface {
	CurrentUser(ctx context.Context) (*directory.User, error)
	AddUserToRoom(ctx context.Context, room string) error
	Room(ctx context.Context, room string) (*directory.Room, error)
}

// Snapshot is what a successful bootstrap yields.
type Snapshot struct {
	User    directory.User
	Room    string
	Members []chat.Member
}

// Bootstrapper runs the three setup calls in order, each gated on the one
// before: resolve identity, join the room, fetch the room snapshot.
type Bootstrapper struct {
	dir   Directory
	creds credential.Store
	log   zerolog.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(dir Directory, creds credential.Store, logger zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{dir: dir, creds: creds, log: logger}
}

// Run bootstraps room. An identity or room fetch failure invalidates the
// stored credential; a join failure keeps it.
func (b *Bootstrapper) Run(ctx context.Context, room string) (*Snapshot, error) {
	start := time.Now()

	user, err := b.dir.CurrentUser(ctx)
	if err != nil {
		b.invalidate(ctx)
		b.log.Error().Err(err).Msg("[session] fetching current user failed")
		metrics.BootstrapFailures.WithLabelValues("identity").Inc()
		return nil, fmt.Errorf("%w: %w", ErrIdentity, err)
	}

	if err := b.dir.AddUserToRoom(ctx, room); err != nil {
		b.log.Error().Err(err).Str("room", room).Msg("[session] adding user to room failed")
		metrics.BootstrapFailures.WithLabelValues("join").Inc()
		return nil, fmt.Errorf("%w: %w", ErrJoin, err)
	}

	snap, err := b.dir.Room(ctx, room)
	if err != nil {
		b.invalidate(ctx)
		b.log.Error().Err(err).Str("room", room).Msg("[session] fetching room failed")
		metrics.BootstrapFailures.WithLabelValues("room").Inc()
		return nil, fmt.Errorf("%w: %w", ErrRoomFetch, err)
	}

	name := snap.RoomName
	if name == "" {
		name = room
	}
	members := make([]chat.Member, 0, len(snap.Members))
	for _, m := range snap.Members {
		members = append(members, chat.Member{Username: m.Username, Avatar: m.AvatarURL()})
	}

	metrics.BootstrapDuration.Observe(time.Since(start).Seconds())
	return &Snapshot{User: *user, Room: name, Members: members}, nil
}

func (b *Bootstrapper) invalidate(ctx context.Context) {
	if err := b.creds.Invalidate(ctx); err != nil {
		b.log.Warn().Err(err).Msg("[session] invalidating credential failed")
	}
}
