// Package config assembles the per-component configs from defaults, an
// optional YAML file, ROOMCHAT_ environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roomchat/roomchat/internal/directory"
	"github.com/roomchat/roomchat/internal/messaging"
	"github.com/roomchat/roomchat/internal/ws"
)

// Keys understood in the config file. Environment variables use the upper
// case key with the ROOMCHAT_ prefix, e.g. ROOMCHAT_API_URL.
const (
	KeyAPIURL       = "api_url"
	KeyWSURL        = "ws_url"
	KeyToken        = "token"
	KeyProfile      = "profile"
	KeyRedisAddr    = "redis_addr"
	KeyNATSURL      = "nats_url"
	KeyArchiveDSN   = "archive_dsn"
	KeyMetricsAddr  = "metrics_addr"
	KeyLogLevel     = "log_level"
	KeyHTTPTimeout  = "http_timeout"
	KeyDialTimeout  = "dial_timeout"
	KeyPingInterval = "ping_interval"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ROOMCHAT"

// flagKeys maps command flags to config keys.
var flagKeys = map[string]string{
	"api-url":      KeyAPIURL,
	"ws-url":       KeyWSURL,
	"token":        KeyToken,
	"profile":      KeyProfile,
	"redis-addr":   KeyRedisAddr,
	"nats-url":     KeyNATSURL,
	"archive-dsn":  KeyArchiveDSN,
	"metrics-addr": KeyMetricsAddr,
	"log-level":    KeyLogLevel,
}

// Config is the fully resolved client configuration.
type Config struct {
	WS        ws.Config
	Directory directory.Config
	NATS      messaging.NATSConfig

	Token       string // static bearer token; empty uses the credential store
	Profile     string // credential store profile
	RedisAddr   string // empty keeps credentials in memory
	NATSURL     string // empty disables the event mirror
	ArchiveDSN  string // empty disables the transcript archive
	MetricsAddr string // empty disables the /metrics listener
	LogLevel    zerolog.Level
}

// New returns a viper instance with every default registered.
func New() *viper.Viper {
	v := viper.New()
	wsDefaults := ws.DefaultConfig()
	dirDefaults := directory.DefaultConfig()

	v.SetDefault(KeyAPIURL, dirDefaults.BaseURL)
	v.SetDefault(KeyWSURL, wsDefaults.BaseURL)
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyProfile, "default")
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyArchiveDSN, "")
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyHTTPTimeout, dirDefaults.Timeout)
	v.SetDefault(KeyDialTimeout, wsDefaults.DialTimeout)
	v.SetDefault(KeyPingInterval, wsDefaults.PingInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every known flag present in fs to its config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile reads the config file at path, or $HOME/.roomchat.yaml when path
// is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".roomchat")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

// Load resolves the component configs from v.
func Load(v *viper.Viper) (Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString(KeyLogLevel)))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}

	wsCfg := ws.DefaultConfig()
	wsCfg.BaseURL = v.GetString(KeyWSURL)
	wsCfg.DialTimeout = durationOr(v, KeyDialTimeout, wsCfg.DialTimeout)
	wsCfg.PingInterval = durationOr(v, KeyPingInterval, wsCfg.PingInterval)

	dirCfg := directory.DefaultConfig()
	dirCfg.BaseURL = v.GetString(KeyAPIURL)
	dirCfg.Timeout = durationOr(v, KeyHTTPTimeout, dirCfg.Timeout)

	natsCfg := messaging.DefaultNATSConfig()
	if u := v.GetString(KeyNATSURL); u != "" {
		natsCfg.URL = u
	}

	if wsCfg.BaseURL == "" || dirCfg.BaseURL == "" {
		return Config{}, errors.New("config: api_url and ws_url must not be empty")
	}

	return Config{
		WS:          wsCfg,
		Directory:   dirCfg,
		NATS:        natsCfg,
		Token:       v.GetString(KeyToken),
		Profile:     v.GetString(KeyProfile),
		RedisAddr:   v.GetString(KeyRedisAddr),
		NATSURL:     v.GetString(KeyNATSURL),
		ArchiveDSN:  v.GetString(KeyArchiveDSN),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		LogLevel:    level,
	}, nil
}

// durationOr accepts both "2s" strings and plain durations.
func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
