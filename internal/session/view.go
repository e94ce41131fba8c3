package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/credential"
	"github.com/roomchat/roomchat/internal/media"
	"github.com/roomchat/roomchat/internal/metrics"
	"github.com/roomchat/roomchat/internal/protocol"
	"github.com/roomchat/roomchat/internal/ws"
)

// VideoChatNotice is sent to the room when the user moves to video chat.
const VideoChatNotice = "User is waiting in the video chat. Please join!"

// Config configures one chat view.
type Config struct {
	ID   string // session ID; empty generates a random UUID
	Room string
	WS   ws.Config

	// OnError surfaces attachment rejection reasons to the user.
	OnError func(reason string)
	// OnScroll is the scroll-to-latest side effect.
	OnScroll func()
	// OnUpdate is called after any state or log change.
	OnUpdate func()

	Observers []Observer
	Logger    zerolog.Logger
}

// Deps are the collaborators a view talks to.
type Deps struct {
	Directory   Directory
	Credentials credential.Store
	Validator   *media.Validator // nil selects media.NewValidator(nil)
	Dialer      ws.Dialer        // nil selects ws.GobwasDialer
}

// View is one mounted chat view. It owns its session state, connection
// supervisor, composer and message log; nothing is shared between views.
type View struct {
	cfg      Config
	boot     *Bootstrapper
	sup      *ws.Supervisor
	composer *chat.Composer
	messages *chat.Log
	rec      *Reconciler
	logger   zerolog.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

// NewView wires a view for cfg.Room. Nothing touches the network until
// Mount.
func NewView(cfg Config, deps Deps) *View {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger.With().Str("session", id).Str("room", cfg.Room).Logger()

	v := &View{
		cfg:      cfg,
		messages: chat.NewLog(),
		logger:   logger,
		state:    State{ID: id, Phase: PhaseLoading, Room: cfg.Room},
	}
	v.boot = NewBootstrapper(deps.Directory, deps.Credentials, logger)
	v.composer = chat.NewComposer(chat.ComposerConfig{
		Validator: deps.Validator,
		OnError:   cfg.OnError,
		Logger:    logger,
	})
	v.rec = &Reconciler{
		room:      v.room,
		log:       v.messages,
		members:   v.replaceMembers,
		scroll:    v.scroll,
		observers: cfg.Observers,
		logger:    logger,
	}
	v.sup = ws.NewSupervisor(cfg.WS, ws.Hooks{
		OnOpen:  v.onOpen,
		OnFrame: v.onFrame,
		OnClose: func(error) { v.notify() },
		OnError: func(error) { v.notify() },
	}, logger)
	if deps.Dialer != nil {
		v.sup.SetDialer(deps.Dialer)
	}
	return v
}

// Mount bootstraps the session and then opens the room connection. A
// bootstrap failure leaves the view Errored. A dial failure does not: the
// next send dials again.
func (v *View) Mount(ctx context.Context) error {
	if v.isClosed() {
		return ErrClosed
	}

	snap, err := v.boot.Run(ctx, v.cfg.Room)
	if err != nil {
		v.mu.Lock()
		v.state.Phase = PhaseErrored
		v.state.Err = err
		v.mu.Unlock()
		v.notify()
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.state.CurrentUser = snap.User.Username
	v.state.Avatar = snap.User.AvatarURL()
	v.state.Room = snap.Room
	v.state.Members = snap.Members
	v.state.MemberCount = len(snap.Members)
	v.state.Phase = PhaseReady
	v.mu.Unlock()

	v.logger.Info().Str("user", snap.User.Username).Int("members", len(snap.Members)).Msg("[session] ready")
	v.scroll()
	v.notify()

	if _, err := v.sup.EnsureConnection(ctx, snap.User.Username, snap.Room); err != nil {
		v.logger.Warn().Err(err).Msg("[session] initial connection failed, will retry on send")
	}
	return nil
}

// Focus makes sure the room connection is open, as typing into the input
// does.
func (v *View) Focus(ctx context.Context) error {
	user, room, err := v.target()
	if err != nil {
		return err
	}
	_, err = v.sup.EnsureConnection(ctx, user, room)
	return err
}

// TypeText replaces the draft text. See chat.Composer.OnTextChanged.
func (v *View) TypeText(text string) bool {
	return v.composer.OnTextChanged(text)
}

// PickEmoji appends an emoji to the draft. See chat.Composer.OnEmojiPicked.
func (v *View) PickEmoji(e string) bool {
	return v.composer.OnEmojiPicked(e)
}

// AttachFile validates a and puts it in the draft.
func (v *View) AttachFile(ctx context.Context, a media.Attachment) error {
	err := v.composer.OnFileAttached(ctx, a)
	var rej *media.RejectionError
	if errors.As(err, &rej) {
		metrics.MediaRejections.WithLabelValues(rej.Code).Inc()
	}
	return err
}

// DetachFile drops the staged attachment and keeps the draft text.
func (v *View) DetachFile() {
	v.composer.ClearAttachment()
	v.notify()
}

// Draft returns the current composition.
func (v *View) Draft() chat.Draft {
	return v.composer.Draft()
}

// Submit sends the draft and resets it. It does nothing when there is
// nothing to send. On failure the draft is kept so the user can retry.
func (v *View) Submit(ctx context.Context) error {
	d := v.composer.Draft()
	if !d.SendEnabled {
		return nil
	}
	user, room, err := v.target()
	if err != nil {
		return err
	}

	var frame interface{}
	if d.Attachment != nil {
		content, err := encodeAttachment(d.Attachment)
		if err != nil {
			return err
		}
		frame = protocol.NewFileFrame(user, room, d.Text, d.Attachment.ContentType(), content)
	} else {
		frame = protocol.NewTextFrame(user, room, d.Text)
	}

	if err := v.sup.Send(ctx, user, room, frame); err != nil {
		return fmt.Errorf("session: send: %w", err)
	}
	v.composer.Reset()
	v.scroll()
	v.notify()
	return nil
}

// RequestVideoChat tells the room the user is waiting in video chat and
// hands the session off.
func (v *View) RequestVideoChat(ctx context.Context) error {
	user, room, err := v.target()
	if err != nil {
		return err
	}
	if err := v.sup.Send(ctx, user, room, protocol.NewTextFrame(user, room, VideoChatNotice)); err != nil {
		return fmt.Errorf("session: send video notice: %w", err)
	}

	v.mu.Lock()
	if !v.closed {
		v.state.Phase = PhaseVideoHandoff
	}
	v.mu.Unlock()
	v.notify()
	return nil
}

// State returns a snapshot of the session.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// Messages returns the message log, oldest first.
func (v *View) Messages() []chat.Message {
	return v.messages.Messages()
}

// ConnectionState reports the supervised connection state.
func (v *View) ConnectionState() ws.State {
	return v.sup.State()
}

// Close unmounts the view: the connection is closed and late frames are
// ignored. Close is idempotent.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	v.logger.Info().Msg("[session] closed")
	return v.sup.Close()
}

func (v *View) target() (user, room string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return "", "", ErrClosed
	}
	if !v.state.Phase.canSend() {
		return "", "", fmt.Errorf("%w: phase %s", ErrNotReady, v.state.Phase)
	}
	return v.state.CurrentUser, v.state.Room, nil
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) room() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Room
}

func (v *View) onOpen(*ws.Connection) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if v.state.Phase == PhaseLoading {
		v.state.Phase = PhaseReady
	}
	v.mu.Unlock()
	v.scroll()
	v.notify()
}

func (v *View) onFrame(data []byte) {
	if v.isClosed() {
		return
	}
	if err := v.rec.Handle(data); err == nil {
		v.notify()
	}
}

func (v *View) replaceMembers(event string, members []chat.Member) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.state.Members = members
	v.state.MemberCount = len(members)
	v.logger.Debug().Str("event", event).Int("members", len(members)).Msg("[session] members replaced")
}

func (v *View) scroll() {
	if v.cfg.OnScroll != nil && !v.isClosed() {
		v.cfg.OnScroll()
	}
}

func (v *View) notify() {
	if v.cfg.OnUpdate != nil && !v.isClosed() {
		v.cfg.OnUpdate()
	}
}

func encodeAttachment(a media.Attachment) (string, error) {
	r, err := a.Open()
	if err != nil {
		return "", fmt.Errorf("session: open attachment %s: %w", a.Name(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("session: read attachment %s: %w", a.Name(), err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
