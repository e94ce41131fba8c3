package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/ws", cfg.WS.BaseURL)
	assert.Equal(t, "http://localhost:8000", cfg.Directory.BaseURL)
	assert.Equal(t, time.Second, cfg.Directory.Timeout)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.ArchiveDSN)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roomchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://file:9000
ws_url: ws://file:9000/ws
log_level: debug
http_timeout: 3s
nats_url: nats://file:4222
`), 0o600))

	t.Setenv("ROOMCHAT_REDIS_ADDR", "env:6379")
	t.Setenv("ROOMCHAT_WS_URL", "ws://env:9000/ws")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("api-url", "", "")
	fs.String("token", "", "")
	require.NoError(t, fs.Parse([]string{"--api-url", "http://flag:9000", "--token", "abc"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, ReadFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://flag:9000", cfg.Directory.BaseURL, "flag beats file")
	assert.Equal(t, "ws://env:9000/ws", cfg.WS.BaseURL, "env beats file")
	assert.Equal(t, "env:6379", cfg.RedisAddr)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, "nats://file:4222", cfg.NATS.URL)
	assert.Equal(t, 3*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestReadFile_MissingExplicitFile(t *testing.T) {
	err := ReadFile(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestReadFile_MissingDefaultFileIgnored(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, ReadFile(New(), ""))
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	v := New()
	v.Set(KeyLogLevel, "loud")
	_, err := Load(v)
	require.Error(t, err)
}
