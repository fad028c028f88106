package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, BackendFile, cfg.Upload.Backend)
	assert.Equal(t, "./files", cfg.Upload.Dir)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxFileSize)
	assert.Equal(t, 10*time.Second, cfg.Upload.CompensationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Redis.StatsCacheTTL)
	assert.Equal(t, "HS256", cfg.Security.Algorithm)
	assert.Equal(t, 30, cfg.Security.AccessTokenExpireMinutes)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/tmp/feria.db")
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "2048")
	t.Setenv("STATS_CACHE_TTL", "1m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/feria.db", cfg.Database.Path)
	assert.Equal(t, int64(2048), cfg.Upload.MaxFileSize)
	assert.Equal(t, time.Minute, cfg.Redis.StatsCacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unparseable duration", map[string]string{"DB_DRIVER": "memory", "SERVER_REQUEST_TIMEOUT": "soon"}, "SERVER_REQUEST_TIMEOUT"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without params", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"s3 without bucket", map[string]string{"DB_DRIVER": "memory", "UPLOAD_BACKEND": "s3"}, "UPLOAD_BUCKET"},
		{"unknown backend", map[string]string{"DB_DRIVER": "memory", "UPLOAD_BACKEND": "ftp"}, "UPLOAD_BACKEND"},
		{"non-positive size", map[string]string{"DB_DRIVER": "memory", "UPLOAD_MAX_FILE_SIZE": "0"}, "UPLOAD_MAX_FILE_SIZE"},
		{"bad log level", map[string]string{"DB_DRIVER": "memory", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := Database{Host: "db", Port: 5433, Name: "feria", User: "app", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5433/feria?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FERIA_TEST_ONLY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FERIA_TEST_ONLY") })

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "from-file", os.Getenv("FERIA_TEST_ONLY"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing"), false))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing"), true))
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{Database: Database{Password: "hunter2", URL: "postgres://u:hunter2@h/db"}, Security: Security{SecretKey: "s3cret"}}
	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
}
