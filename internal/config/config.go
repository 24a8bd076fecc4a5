// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration with viper:
// defaults < TOML file < YANAMI__* environment < flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autobrr/yanami/internal/domain"
)

const envPrefix = "YANAMI"

// Load builds the configuration. configFile may be empty; flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*domain.Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":7856")
	v.SetDefault("mode", "info")
	v.SetDefault("dbPath", "yanami.db")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		// Flag names map 1:1 onto config keys (db-path -> dbPath etc.).
		for flagName, key := range map[string]string{
			"addr":       "addr",
			"mode":       "mode",
			"key":        "key",
			"db-path":    "dbPath",
			"tmdb-token": "tmdbToken",
			"log-path":   "logPath",
		} {
			if f := flags.Lookup(flagName); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
