// Package config builds the service configuration from the environment once at
// startup. The resulting value is passed into constructors and never mutated.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Certificate storage backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
)

// Config holds all service configuration.
type Config struct {
	Server   Server
	Database Database
	Upload   Upload
	Redis    Redis
	Security Security
	Logging  Logging
	Metrics  Metrics
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"FERIA_ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" default:"5s"`
	RequestTimeout    time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Database selects and tunes the registration record store.
type Database struct {
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL takes precedence over the individual connection fields.
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" default:"localhost"`
	Port     int    `env:"DB_PORT" default:"5432"`
	Name     string `env:"DB_NAME"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSLMODE" default:"disable"`

	// Path is the SQLite database file.
	Path string `env:"DB_PATH" default:"feria.db"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" default:"1h"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" default:"true"`
}

// DSN returns the postgres connection string.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Upload configures certificate storage.
type Upload struct {
	Backend     string `env:"UPLOAD_BACKEND" default:"file"`
	Dir         string `env:"UPLOAD_DIR" default:"./files"`
	MaxFileSize int64  `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	Bucket             string `env:"UPLOAD_BUCKET"`
	Prefix             string `env:"UPLOAD_PREFIX"`
	Region             string `env:"UPLOAD_REGION" default:"us-east-1"`
	Endpoint           string `env:"UPLOAD_ENDPOINT"`
	AccessKey          string `env:"UPLOAD_ACCESS_KEY"`
	SecretKey          string `env:"UPLOAD_SECRET_KEY"`
	GCSCredentialsJSON string `env:"UPLOAD_GCS_CREDENTIALS_JSON"`

	// CompensationTimeout bounds artifact cleanup after a failed insert.
	CompensationTimeout time.Duration `env:"UPLOAD_COMPENSATION_TIMEOUT" default:"10s"`
}

// Redis configures the optional statistics cache. An empty URL disables it.
type Redis struct {
	URL           string        `env:"REDIS_URL"`
	PoolSize      int           `env:"REDIS_POOL_SIZE" default:"10"`
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" default:"30s"`
}

// Security carries token settings for deployments that front the service with auth.
// Nothing in this service issues or checks tokens.
type Security struct {
	SecretKey                string `env:"SECRET_KEY"`
	Algorithm                string `env:"ALGORITHM" default:"HS256"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"30"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Metrics toggles the prometheus endpoint.
type Metrics struct {
	Enabled bool `env:"METRICS_ENABLED" default:"true"`
}

// String masks credentials so the config can be logged at startup.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {Addr: %q}, Database: {Driver: %q, AutoMigrate: %v}, Upload: {Backend: %q, Dir: %q, Bucket: %q, MaxFileSize: %d}, Redis: {Enabled: %v, TTL: %s}, Logging: {Level: %q, Format: %q}, Metrics: {Enabled: %v}}",
		c.Server.Addr,
		c.Database.Driver, c.Database.AutoMigrate,
		c.Upload.Backend, c.Upload.Dir, c.Upload.Bucket, c.Upload.MaxFileSize,
		c.Redis.URL != "", c.Redis.StatsCacheTTL,
		c.Logging.Level, c.Logging.Format,
		c.Metrics.Enabled,
	)
}
