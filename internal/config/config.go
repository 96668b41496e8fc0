package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for a communication client.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ClientConfig holds controller settings.
type ClientConfig struct {
	ServerURL        string        `yaml:"server_url"`
	Driver           string        `yaml:"driver"` // gorilla or gobwas
	LivenessInterval time.Duration `yaml:"liveness_interval"`
	DrainInterval    time.Duration `yaml:"drain_interval"`
	EagerDrain       bool          `yaml:"eager_drain"` // publish as soon as a message arrives
}

// TransportConfig holds WebSocket link settings.
type TransportConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
}

// AuthConfig enables signed handshakes when both fields are set.
type AuthConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Enabled reports whether handshakes should be signed.
func (a AuthConfig) Enabled() bool {
	return a.KeyID != "" || a.PrivateKeyPath != ""
}

// ArchiveConfig holds the optional Postgres message archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps Level to a slog.Level. Unknown values mean info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
