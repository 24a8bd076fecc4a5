// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autobrr/yanami/internal/dbinterface"
)

var ErrSettingNotFound = errors.New("setting not found")

const (
	settingDownloadPath = "download_path"
	settingQbitConfig   = "qbit_config"
)

// QbitConfig is the persisted torrent client endpoint.
type QbitConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SettingsStore persists the key/value service configuration.
type SettingsStore struct {
	db dbinterface.Querier
}

func NewSettingsStore(db dbinterface.Querier) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) get(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetDownloadPath returns the configured download root.
func (s *SettingsStore) GetDownloadPath(ctx context.Context) (string, error) {
	return s.get(ctx, settingDownloadPath)
}

// SetDownloadPath stores the download root.
func (s *SettingsStore) SetDownloadPath(ctx context.Context, path string) error {
	return s.set(ctx, settingDownloadPath, path)
}

// GetQbitConfig returns the torrent client endpoint.
func (s *SettingsStore) GetQbitConfig(ctx context.Context) (*QbitConfig, error) {
	raw, err := s.get(ctx, settingQbitConfig)
	if err != nil {
		return nil, err
	}
	var cfg QbitConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode qbit config: %w", err)
	}
	return &cfg, nil
}

// SetQbitConfig stores the torrent client endpoint.
func (s *SettingsStore) SetQbitConfig(ctx context.Context, cfg *QbitConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode qbit config: %w", err)
	}
	return s.set(ctx, settingQbitConfig, string(raw))
}
