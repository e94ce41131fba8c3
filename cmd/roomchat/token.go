package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat/internal/config"
	"github.com/roomchat/roomchat/internal/credential"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored bearer token",
	Long: `Stores the bearer token in Redis when --redis-addr is configured,
otherwise in the config file.`,
}

func init() {
	setCmd := &cobra.Command{
		Use:   "set <token>",
		Short: "Store a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storeToken(cmd.Context(), args[0])
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return storeToken(cmd.Context(), "")
		},
	}
	tokenCmd.AddCommand(setCmd, clearCmd)
}

func storeToken(ctx context.Context, token string) error {
	if cfg.RedisAddr != "" {
		store, err := credential.NewRedisStore(cfg.RedisAddr, cfg.Profile)
		if err != nil {
			return err
		}
		defer store.Close()
		if token == "" {
			return store.Invalidate(ctx)
		}
		return store.Set(ctx, token)
	}

	v.Set(config.KeyToken, token)
	path := v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("home directory: %w", err)
		}
		path = filepath.Join(home, ".roomchat.yaml")
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info().Str("file", path).Msg("[credential] token written")
	return nil
}
