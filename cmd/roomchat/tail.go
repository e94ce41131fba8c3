package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat/internal/messaging"
	"github.com/roomchat/roomchat/internal/transcript"
)

var tailCmd = &cobra.Command{
	Use:   "tail <room>",
	Short: "Follow the events other sessions mirror to NATS for a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return errors.New("--nats-url is required")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		nc, err := messaging.NewNATSClient(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		p := &printer{out: cmd.OutOrStdout()}
		err = nc.Follow(args[0], func(ev messaging.Event) {
			switch {
			case ev.Message != nil:
				p.OnMessage(ev.Room, *ev.Message)
			case ev.Kind == messaging.KindMembership:
				p.OnMembership(ev.Room, ev.Event, ev.Members)
			}
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history <room>",
	Short: "Print the archived transcript of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ArchiveDSN == "" {
			return errors.New("--archive-dsn is required")
		}
		db, err := transcript.Open(cfg.ArchiveDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := transcript.NewStore(db).Recent(cmd.Context(), args[0], flagHistoryLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s\n", e.ReceivedAt.Format("2006-01-02 15:04:05"), formatEntry(e))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 50, "number of entries")
}

func formatEntry(e transcript.Entry) string {
	if e.Kind == transcript.KindMembership {
		return fmt.Sprintf("* %s, %d member(s): %s", e.Body, len(e.Members), memberNames(e.Members))
	}
	return formatMessage(e.Message())
}
