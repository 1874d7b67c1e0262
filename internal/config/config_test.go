package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "seed:", cfg.Redis.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1, cfg.Seed.DefaultCount)

	_, ok := cfg.FixtureCount("Room")
	assert.False(t, ok)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seedling.yml", `
store: sql
database:
  driver: postgres
  url: postgres://localhost/seedling
log:
  level: debug
seed:
  default_count: 3
"seed:Room": "2-7"
"seed:Region": 5
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, StoreSQL, cfg.Store)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/seedling", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Seed.DefaultCount)

	count, ok := cfg.FixtureCount("Room")
	require.True(t, ok)
	assert.Equal(t, "2-7", count)

	count, ok = cfg.FixtureCount("Region")
	require.True(t, ok)
	assert.Equal(t, "5", count)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seedling.yml", "store: memory\n")
	writeFile(t, dir, ".env", "SEEDLING_REDIS_ADDR=cache:6380\n")
	t.Setenv("SEEDLING_STORE", "redis")
	t.Setenv("SEEDLING_SEED_BOOKING", "4")

	cfg, err := Load(dir)
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("SEEDLING_REDIS_ADDR") })

	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)

	count, ok := cfg.FixtureCount("Booking")
	require.True(t, ok)
	assert.Equal(t, "4", count)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown store", "store: mongo\n", "store must be one of"},
		{"negative count", "seed:\n  default_count: -1\n", "must not be negative"},
		{"sql without url", "store: sql\ndatabase:\n  url: \"\"\n", "database.url is required"},
		{"malformed yaml", "store: [\n", "failed to read config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "seedling.yml", tt.content)

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFixtureCount_NilConfig(t *testing.T) {
	var cfg *Config
	_, ok := cfg.FixtureCount("Room")
	assert.False(t, ok)
}
