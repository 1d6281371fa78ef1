package ledger

import (
	"time"

	"github.com/kbukum/framepipe/errors"
)

// DefaultDSN stores the ledger next to the working directory.
const DefaultDSN = "file:framepipe.db?_journal_mode=WAL&_busy_timeout=5000"

// Config holds ledger configuration.
type Config struct {
	// Enabled controls whether frames are recorded.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DSN is a go-sqlite3 data source name, e.g. "file:runs.db" or ":memory:".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
	// OpenAttempts bounds how often Start tries to open the database.
	OpenAttempts int `yaml:"open_attempts" mapstructure:"open_attempts"`
	// OpenBackoff is the wait before the second open attempt; later waits double.
	OpenBackoff time.Duration `yaml:"open_backoff" mapstructure:"open_backoff"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.DSN == "" {
		c.DSN = DefaultDSN
	}
	if c.OpenAttempts == 0 {
		c.OpenAttempts = 3
	}
	if c.OpenBackoff == 0 {
		c.OpenBackoff = 200 * time.Millisecond
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Enabled && c.DSN == "" {
		return errors.MissingField("ledger.dsn")
	}
	if c.OpenAttempts < 0 {
		return errors.InvalidInput("ledger.open_attempts", "must not be negative")
	}
	if c.OpenBackoff < 0 {
		return errors.InvalidInput("ledger.open_backoff", "must not be negative")
	}
	return nil
}
