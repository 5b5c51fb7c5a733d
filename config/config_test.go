package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("LIVE_SHARDS", "")
	t.Setenv("RTC_TOKEN_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 32, cfg.Live.Shards)
	assert.Equal(t, 3*time.Second, cfg.Live.PersistTimeout)
	assert.Equal(t, "zego", cfg.RTC.Provider)
	assert.Equal(t, int64(3600), cfg.RTC.TokenTTLSeconds)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("LIVE_PERSIST_TIMEOUT", "750ms")
	t.Setenv("LIVE_SHARDS", "8")
	t.Setenv("RTC_TOKEN_PROVIDER", "jwt")
	t.Setenv("ZEGO_APP_ID", "12345")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Database.SQLitePath)
	assert.Equal(t, 750*time.Millisecond, cfg.Live.PersistTimeout)
	assert.Equal(t, 8, cfg.Live.Shards)
	assert.Equal(t, "jwt", cfg.RTC.Provider)
	assert.Equal(t, uint32(12345), cfg.RTC.ZegoAppID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DB_DRIVER", "mongo")
	t.Setenv("LIVE_SHARDS", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "LIVE_SHARDS")
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "1", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:1/d?sslmode=disable", c.DSN())
	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
