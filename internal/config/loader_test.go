package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config file should be written")
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "addr: \":9000\"\nping_interval: 10s\npresence_store: redis\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("RELAY_ADDR", ":9100")
	t.Setenv("RELAY_COMMAND_BURST", "3")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr, "env beats file")
	assert.Equal(t, 10*time.Second, cfg.PingInterval, "file beats default")
	assert.Equal(t, PresenceStoreRedis, cfg.PresenceStore)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.CommandBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, Default().TokenTTL, cfg.TokenTTL)
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000", LogLevel: "warn"})

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout, "zero values are ignored")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "redis", mutate: func(c *Config) { c.PresenceStore = PresenceStoreRedis }},
		{name: "redis without addr", mutate: func(c *Config) {
			c.PresenceStore = PresenceStoreRedis
			c.RedisAddr = ""
		}, wantErr: true},
		{name: "unknown presence store", mutate: func(c *Config) { c.PresenceStore = "etcd" }, wantErr: true},
		{name: "json logs", mutate: func(c *Config) { c.LogFormat = "json" }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "no secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: true},
		{name: "no message limit", mutate: func(c *Config) { c.MaxMessageBytes = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
