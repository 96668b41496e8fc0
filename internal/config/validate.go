package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Client.ServerURL == "" {
		return errors.New("client.server_url is required")
	}
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil {
		return fmt.Errorf("client.server_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.server_url must use ws or wss, got %q", u.Scheme)
	}
	if c.Client.Driver != "gorilla" && c.Client.Driver != "gobwas" {
		return fmt.Errorf("client.driver must be gorilla or gobwas, got %q", c.Client.Driver)
	}
	if c.Client.LivenessInterval <= 0 {
		return errors.New("client.liveness_interval must be > 0")
	}
	if c.Client.DrainInterval < 0 {
		return errors.New("client.drain_interval must be >= 0")
	}

	if c.Transport.ReconnectBaseDelay <= 0 {
		return errors.New("transport.reconnect_base_delay must be > 0")
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectBaseDelay {
		return fmt.Errorf("transport.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Transport.ReconnectMaxDelay, c.Transport.ReconnectBaseDelay)
	}

	if c.Auth.Enabled() {
		if c.Auth.KeyID == "" {
			return errors.New("auth.key_id is required when auth.private_key_path is set")
		}
		if c.Auth.PrivateKeyPath == "" {
			return errors.New("auth.private_key_path is required when auth.key_id is set")
		}
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if !tableName.MatchString(c.Archive.Table) {
			return fmt.Errorf("archive.table %q is not a valid table name", c.Archive.Table)
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
