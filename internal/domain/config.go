// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "errors"

// Config is the process configuration, sourced from flags, environment
// and an optional TOML file.
type Config struct {
	Version   string
	Addr      string `toml:"addr" mapstructure:"addr"`
	Mode      string `toml:"mode" mapstructure:"mode"`
	Key       string `toml:"key" mapstructure:"key"`
	DBPath    string `toml:"dbPath" mapstructure:"dbPath"`
	TMDBToken string `toml:"tmdbToken" mapstructure:"tmdbToken"`
	LogPath   string `toml:"logPath" mapstructure:"logPath"`
}

// LogMode returns the configured log mode clamped to the supported set.
// Anything unrecognized falls back to info.
func (c *Config) LogMode() string {
	switch c.Mode {
	case "debug", "warn", "info":
		return c.Mode
	default:
		return "info"
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Key == "" {
		return errors.New("key (JWT secret) is required")
	}
	if c.DBPath == "" {
		return errors.New("db-path is required")
	}
	return nil
}
