// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"

	"github.com/burrow-net/burrow/lib/config"
)

// Common holds the flags every burrow command accepts. Embed it in a
// command's params struct.
type Common struct {
	ConfigPath string `flag:"config,c" desc:"node configuration file (default: $BURROW_CONFIG)"`
	Verbose    bool   `flag:"verbose,v" desc:"log at debug level"`
}

// LogLevel returns the level selected by --verbose.
func (c *Common) LogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// LoadConfig loads and validates the configuration named by --config,
// or by BURROW_CONFIG when the flag is absent.
func (c *Common) LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.ConfigPath != "" {
		cfg, err = config.LoadFile(c.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, Validation("%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration:\n%w", err)
	}
	return cfg, nil
}
