package hooks

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

// Config holds hook execution settings.
type Config struct {
	// StopOnError aborts the remaining handlers after the first failure.
	StopOnError bool
	// Timeout bounds each handler. Zero disables the bound.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

// FromSettings converts the hooks section of the application config.
func FromSettings(s config.HooksConfig) *Config {
	return &Config{
		StopOnError: s.StopOnError,
		Timeout:     s.Timeout.Duration(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}
