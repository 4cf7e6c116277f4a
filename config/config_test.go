package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.HTTPConfig.Addr)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
	assert.Equal(t, defaultPingTimeout, cfg.RealtimeConfig.PingTimeout)
	assert.Equal(t, defaultSendBuffer, cfg.RealtimeConfig.SendBuffer)
	assert.Equal(t, defaultStatsCron, cfg.RealtimeConfig.StatsCron)
	assert.Equal(t, defaultUserCacheSize, cfg.CacheConfig.UserCacheSize)
}

func TestReadConfigurationFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.toml"), []byte(`
log_level = "debug"

[http]
addr = ":8080"
cors_origins = ["https://bingo-chat.example"]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.toml"), []byte(`
[session]
secret = "s3cret"
ttl = "2h"

[realtime]
ping_timeout = "30s"
`), 0o600))

	cfg, err := ReadConfiguration(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPConfig.Addr)
	assert.Equal(t, []string{"https://bingo-chat.example"}, cfg.HTTPConfig.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.SessionConfig.Secret)
	assert.Equal(t, 2*time.Hour, cfg.SessionConfig.TTL)
	assert.Equal(t, 30*time.Second, cfg.RealtimeConfig.PingTimeout)
}

func TestReadConfigurationEnvAndFlags(t *testing.T) {
	t.Setenv("BINGOCHAT_PERSISTENCE_DSN", "from-env.db")
	t.Setenv("BINGOCHAT_HTTP_ADDR", ":1111")

	flagSet := GetFlagSet()
	require.NoError(t, flagSet.Parse([]string{"--http.addr", ":2222", "--log-level", "warn"}))

	cfg, err := ReadConfiguration("", flagSet)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.PersistenceConfig.DSN)
	assert.Equal(t, ":2222", cfg.HTTPConfig.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestReadConfigurationMissingPath(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}
