// Package ratelimit throttles outbound Productboard calls per API instance
package ratelimit

import (
	"fmt"
	"time"
)

// Config represents the rate limiting configuration
type Config struct {
	// Global rate limiting settings
	DefaultLimit    int           `json:"default_limit" yaml:"default_limit"`
	DefaultWindow   time.Duration `json:"default_window" yaml:"default_window"`
	DefaultBurst    int           `json:"default_burst" yaml:"default_burst"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`

	// Per-instance overrides, keyed by instance name
	InstanceLimits map[string]*Limit `json:"instance_limits" yaml:"instance_limits"`

	Disabled bool `json:"disabled" yaml:"disabled"`
}

// Limit is the budget for one key
type Limit struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
	Burst  int           `json:"burst" yaml:"burst"`
}

// DefaultConfig returns a default rate limiting configuration. Productboard
// allows roughly 50 requests per second per token.
func DefaultConfig() *Config {
	return &Config{
		DefaultLimit:    50,
		DefaultWindow:   time.Second,
		DefaultBurst:    0,
		CleanupInterval: 5 * time.Minute,
		InstanceLimits:  make(map[string]*Limit),
	}
}

// LimitFor returns the limit for key, falling back to the defaults
func (c *Config) LimitFor(key string) *Limit {
	if l, ok := c.InstanceLimits[key]; ok && l != nil {
		return l
	}
	return &Limit{
		Limit:  c.DefaultLimit,
		Window: c.DefaultWindow,
		Burst:  c.DefaultBurst,
	}
}

// Validate validates the rate limiting configuration
func (c *Config) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive, got %d", c.DefaultLimit)
	}
	if c.DefaultWindow <= 0 {
		return fmt.Errorf("default_window must be positive, got %v", c.DefaultWindow)
	}
	if c.DefaultBurst < 0 {
		return fmt.Errorf("default_burst must not be negative, got %d", c.DefaultBurst)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", c.CleanupInterval)
	}

	for name, l := range c.InstanceLimits {
		if l == nil {
			continue
		}
		if l.Limit <= 0 {
			return fmt.Errorf("instance %s: limit must be positive, got %d", name, l.Limit)
		}
		if l.Window <= 0 {
			return fmt.Errorf("instance %s: window must be positive, got %v", name, l.Window)
		}
		if l.Burst < 0 {
			return fmt.Errorf("instance %s: burst must not be negative, got %d", name, l.Burst)
		}
	}

	return nil
}
