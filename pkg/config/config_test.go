package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads, so the host environment does not leak
// into the assertions.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"SERVER_ADDR", "SERVER_HOST", "PORT", "DATABASE_URL", "DB_HOST", "DB_PORT",
		"DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "REDIS_URL", "JWT_SECRET",
		"LOG_LEVEL", "LOG_FORMAT", "STORE", "MAX_UPLOAD_BYTES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Contains(t, cfg.GetDatabaseConnectionString(), "dbname=scriptboard")
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "scriptboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
database:
  url: postgres://file/db
store: memory
log:
  level: debug
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://env/db", cfg.GetDatabaseConnectionString())
	assert.Equal(t, int64(2048), cfg.Server.MaxUploadBytes)
}

func TestServerAddrOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", "127.0.0.1:7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.GetServerAddr())
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE", "cassandra")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
