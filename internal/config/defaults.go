package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDriver             = "gorilla"
	DefaultLivenessInterval   = 5 * time.Second
	DefaultDrainInterval      = 5 * time.Millisecond
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultArchiveTable       = "umsg_messages"
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 1024
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Default returns a config with every default applied and no server set.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Client.Driver == "" {
		c.Client.Driver = DefaultDriver
	}
	if c.Client.LivenessInterval == 0 {
		c.Client.LivenessInterval = DefaultLivenessInterval
	}
	if c.Client.DrainInterval == 0 && !c.Client.EagerDrain {
		c.Client.DrainInterval = DefaultDrainInterval
	}

	if c.Transport.ReconnectBaseDelay == 0 {
		c.Transport.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Transport.ReconnectMaxDelay == 0 {
		c.Transport.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}

	applyDBDefaults(&c.Archive.Database)
	if c.Archive.Table == "" {
		c.Archive.Table = DefaultArchiveTable
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
