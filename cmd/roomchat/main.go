package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roomchat/roomchat/internal/config"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "roomchat",
	Short:         "Terminal client for room chat servers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		if err := config.ReadFile(v, cfgFile); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(cfg.LogLevel).
			With().Timestamp().Logger()
		return nil
	},
}

func init() {
	v = config.New()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.roomchat.yaml)")
	flags.String("api-url", "", "REST API base URL (default http://localhost:8000)")
	flags.String("ws-url", "", "WebSocket endpoint prefix (default ws://localhost:8000/ws)")
	flags.String("token", "", "bearer token, overrides the stored credential")
	flags.String("profile", "", "credential profile name (default \"default\")")
	flags.String("redis-addr", "", "Redis address of the credential store; empty keeps it in memory")
	flags.String("nats-url", "", "NATS URL to mirror room events to; empty disables the mirror")
	flags.String("archive-dsn", "", "PostgreSQL DSN of the transcript archive; empty disables it")
	flags.String("metrics-addr", "", "listen address for /metrics; empty disables it")
	flags.String("log-level", "", "log level (default info)")

	rootCmd.AddCommand(chatCmd, roomsCmd, tokenCmd, migrateCmd, tailCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "roomchat:", err)
		os.Exit(1)
	}
}
