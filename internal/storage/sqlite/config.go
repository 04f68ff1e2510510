package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const defaultDBFile = "sessions.db"

var journalModes = []string{"wal", "delete", "truncate", "memory"}

// Config is the storage.sqlite section of the service config.
type Config struct {
	// Path of the database file. Empty means {DataDir}/sessions.db.
	Path string `yaml:"path"`

	// Journal is the SQLite journal mode: wal (default), delete, truncate
	// or memory.
	Journal string `yaml:"journal"`

	// BusyTimeout bounds the wait on a locked database. Default 5s.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	c.Journal = strings.ToLower(strings.TrimSpace(c.Journal))
	if c.Journal == "" {
		c.Journal = "wal"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if !slices.Contains(journalModes, c.Journal) {
		return fmt.Errorf("sqlite: journal %q is not one of %s", c.Journal, strings.Join(journalModes, ", "))
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout)
	}
	return nil
}

// pragmas returns the statements run on every new connection.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + strings.ToUpper(c.Journal),
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
	}
}
