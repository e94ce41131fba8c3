package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/media"
	"github.com/roomchat/roomchat/internal/messaging"
	"github.com/roomchat/roomchat/internal/session"
	"github.com/roomchat/roomchat/internal/transcript"
)

var chatCmd = &cobra.Command{
	Use:   "chat <room>",
	Short: "Join a room and chat interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveMetrics(ctx)

	dir, creds, closeCreds, err := openDirectory()
	if err != nil {
		return err
	}
	defer closeCreds()

	out := cmd.OutOrStdout()
	sessionID := uuid.NewString()
	observers, closeObservers := openObservers(sessionID)
	defer closeObservers()
	observers = append([]session.Observer{&printer{out: out}}, observers...)

	view := session.NewView(session.Config{
		ID:        sessionID,
		Room:      args[0],
		WS:        cfg.WS,
		OnError:   func(reason string) { fmt.Fprintln(out, "!", reason) },
		Observers: observers,
		Logger:    logger,
	}, session.Deps{
		Directory:   dir,
		Credentials: creds,
	})
	defer view.Close()

	if err := view.Mount(ctx); err != nil {
		return fmt.Errorf("join %s: %w", args[0], err)
	}
	st := view.State()
	fmt.Fprintf(out, "joined %s as %s, %d member(s): %s\n", st.Room, st.CurrentUser, st.MemberCount, memberNames(st.Members))
	fmt.Fprintln(out, "type /help for commands")

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)
	p := &prompt{view: view, out: out}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := p.handle(ctx, line)
			if err != nil {
				fmt.Fprintln(out, "!", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

// prompt applies lines typed at the chat prompt to a view.
type prompt struct {
	view *session.View
	out  io.Writer
	// afterEmoji is set while the last line only added an emoji to the draft.
	afterEmoji bool
}

// joinDraft appends a typed line to a draft kept from an earlier line. An
// emoji pick is followed directly, anything else gets a separating space.
func joinDraft(draft, line string, afterEmoji bool) string {
	switch {
	case draft == "":
		return line
	case line == "", afterEmoji:
		return draft + line
	}
	return draft + " " + line
}

// handle applies one prompt line. It reports whether the user asked to
// leave.
func (p *prompt) handle(ctx context.Context, line string) (bool, error) {
	in, err := parseInput(line)
	if err != nil {
		return false, err
	}

	view, out := p.view, p.out
	afterEmoji := p.afterEmoji
	p.afterEmoji = false

	switch in.kind {
	case inputText:
		if !view.TypeText(joinDraft(view.Draft().Text, in.arg, afterEmoji)) {
			return false, fmt.Errorf("message exceeds %d characters", chat.MaxDraftUnits)
		}
		if err := view.Submit(ctx); err != nil {
			return false, fmt.Errorf("%w (draft kept, press Enter to retry)", err)
		}
		return false, nil
	case inputAttach:
		a, err := media.OpenFile(in.arg)
		if err != nil {
			return false, err
		}
		if err := view.AttachFile(ctx, a); err != nil {
			// The reason was already shown through OnError.
			return false, nil
		}
		fmt.Fprintf(out, "attached %s, enter a caption or an empty line to send\n", a.Name())
	case inputEmoji:
		if !view.PickEmoji(in.arg) {
			p.afterEmoji = afterEmoji
			return false, fmt.Errorf("cannot add %s to the draft", in.arg)
		}
		p.afterEmoji = true
		fmt.Fprintf(out, "draft: %s\n", view.Draft().Text)
	case inputDetach:
		if view.Draft().Attachment == nil {
			return false, errors.New("no file attached")
		}
		view.DetachFile()
		fmt.Fprintln(out, "attachment removed")
	case inputVideo:
		if err := view.RequestVideoChat(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "waiting in video chat")
	case inputMembers:
		st := view.State()
		fmt.Fprintf(out, "%d member(s): %s\n", st.MemberCount, memberNames(st.Members))
	case inputHelp:
		fmt.Fprintln(out, replHelp)
	case inputQuit:
		return true, nil
	}
	return false, nil
}

// openObservers connects the optional NATS mirror and transcript archive.
// Either failing to connect is logged and the chat runs without it.
func openObservers(sessionID string) ([]session.Observer, func()) {
	var observers []session.Observer
	var closers []func()

	if cfg.NATSURL != "" {
		nc, err := messaging.NewNATSClient(cfg.NATS, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("[nats] mirror disabled")
		} else {
			observers = append(observers, messaging.NewMirror(nc, sessionID, logger))
			closers = append(closers, nc.Close)
		}
	}

	if cfg.ArchiveDSN != "" {
		db, err := transcript.Open(cfg.ArchiveDSN)
		if err != nil {
			logger.Warn().Err(err).Msg("[transcript] archive disabled")
		} else {
			rec := transcript.NewRecorder(transcript.NewStore(db), sessionID, 0, logger)
			observers = append(observers, rec)
			closers = append(closers, rec.Close, func() { db.Close() })
		}
	}

	return observers, func() {
		for _, c := range closers {
			c()
		}
	}
}
