// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package config

import (
	"fmt"

	"github.com/tomtom215/rowlens/internal/validation"
)

// Validate checks struct tags first, then rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateStore,
		c.validateServer,
		c.validateDefaults,
		c.validateEndpoints,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Backend != BackendMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required for the %s backend", c.Store.Backend)
	}
	if c.Store.CacheSize > 0 && c.Store.CacheTTL < 0 {
		return fmt.Errorf("STORE_CACHE_TTL must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when RATE_LIMIT_REQS is set")
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	seen := make(map[string]bool, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if _, err := ep.Kind(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		key := ep.Key()
		if seen[key] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %s", i, key)
		}
		seen[key] = true

		if err := c.TuningFor(ep).Validate(); err != nil {
			return fmt.Errorf("endpoints[%d] %s: %w", i, key, err)
		}
	}
	return nil
}
