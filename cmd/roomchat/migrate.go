package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat/internal/transcript"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply transcript archive schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.ArchiveDSN == "" {
			return errors.New("--archive-dsn is required")
		}
		db, err := transcript.Open(cfg.ArchiveDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := transcript.Migrate(db); err != nil {
			return err
		}
		logger.Info().Msg("[transcript] schema up to date")
		return nil
	},
}
