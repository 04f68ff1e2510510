package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	defaultBind        = "127.0.0.1:8080"
	defaultSearchLimit = 20
	maxSearchLimit     = 500
)

// Config is the gateway.http section of the service config.
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SearchLimit caps the cards returned by one card search.
	SearchLimit int `yaml:"search_limit"`
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = defaultBind
	}
	setDuration(&c.ReadTimeout, 10*time.Second)
	setDuration(&c.WriteTimeout, 30*time.Second)
	setDuration(&c.ShutdownTimeout, 5*time.Second)
	if c.SearchLimit <= 0 {
		c.SearchLimit = defaultSearchLimit
	}
}

func setDuration(d *time.Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = fallback
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("invalid bind address %q", c.Bind))
	}
	if c.SearchLimit > maxSearchLimit {
		errs = append(errs, fmt.Errorf("search_limit %d exceeds %d", c.SearchLimit, maxSearchLimit))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("auth: basic_user and basic_pass must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// AuthConfig protects the /api routes. Either method, or both, may be set.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any auth method is enabled.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
