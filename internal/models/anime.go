// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package models holds the domain types and their SQLite stores.
package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autobrr/yanami/internal/dbinterface"
)

var ErrAnimeNotFound = errors.New("anime not found")

// WatchStatus is the per-series tracking state.
type WatchStatus string

const (
	WatchStatusWatching WatchStatus = "watching"
	WatchStatusRetired  WatchStatus = "retired"
)

// AnimeInfo is the immutable snapshot of one series at one season, as
// assembled by calendar sync.
type AnimeInfo struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	NameCN            string   `json:"name_cn"`
	NameTW            string   `json:"name_tw"`
	AlternativeTitles []string `json:"alternative_titles,omitempty"`
	SearchName        string   `json:"search_name"`
	Weekday           int      `json:"weekday"`
	Eps               int      `json:"eps"`
	Season            int      `json:"season"`
	AirDate           string   `json:"air_date"`
}

// Names returns the alias set: the alternative titles when present,
// otherwise the non-empty primary titles.
func (a *AnimeInfo) Names() []string {
	if len(a.AlternativeTitles) > 0 {
		return a.AlternativeTitles
	}
	names := make([]string, 0, 3)
	for _, n := range []string{a.Name, a.NameTW, a.NameCN} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// AnimeStatus is the mutable tracking record for one series.
type AnimeStatus struct {
	AnimeInfo AnimeInfo   `json:"anime_info"`
	Status    WatchStatus `json:"status"`
	IsLock    bool        `json:"is_lock"`
	IsSearch  bool        `json:"is_search"`
	RuleName  string      `json:"rule_name"`
	Progress  int         `json:"progress"`
}

// AnimeStatusStore persists anime tracking statuses.
type AnimeStatusStore struct {
	db dbinterface.Querier
}

func NewAnimeStatusStore(db dbinterface.Querier) *AnimeStatusStore {
	return &AnimeStatusStore{db: db}
}

func scanAnimeStatus(row interface{ Scan(...any) error }) (*AnimeStatus, error) {
	var (
		status AnimeStatus
		info   []byte
	)
	if err := row.Scan(&status.Status, &status.RuleName, &info, &status.IsSearch, &status.IsLock, &status.Progress); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(info, &status.AnimeInfo); err != nil {
		return nil, fmt.Errorf("decode anime info: %w", err)
	}
	return &status, nil
}

// Get retrieves one status by series id.
func (s *AnimeStatusStore) Get(ctx context.Context, id int64) (*AnimeStatus, error) {
	query := `
		SELECT status, rule_name, anime_info, is_search, is_lock, progress
		FROM anime
		WHERE id = ?
	`

	status, err := scanAnimeStatus(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnimeNotFound
		}
		return nil, fmt.Errorf("get anime %d: %w", id, err)
	}
	return status, nil
}

// List retrieves every status.
func (s *AnimeStatusStore) List(ctx context.Context) ([]*AnimeStatus, error) {
	return s.list(ctx, `
		SELECT status, rule_name, anime_info, is_search, is_lock, progress
		FROM anime
		ORDER BY id
	`)
}

// ListWatching retrieves the statuses that still have a live listener.
func (s *AnimeStatusStore) ListWatching(ctx context.Context) ([]*AnimeStatus, error) {
	return s.list(ctx, `
		SELECT status, rule_name, anime_info, is_search, is_lock, progress
		FROM anime
		WHERE status = 'watching'
		ORDER BY id
	`)
}

func (s *AnimeStatusStore) list(ctx context.Context, query string) ([]*AnimeStatus, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list anime: %w", err)
	}
	defer rows.Close()

	var statuses []*AnimeStatus
	for rows.Next() {
		status, err := scanAnimeStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anime: %w", err)
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anime: %w", err)
	}
	return statuses, nil
}

// Save writes the full status row, inserting it if missing.
func (s *AnimeStatusStore) Save(ctx context.Context, status *AnimeStatus) error {
	info, err := json.Marshal(status.AnimeInfo)
	if err != nil {
		return fmt.Errorf("encode anime info: %w", err)
	}

	query := `
		INSERT INTO anime (id, status, rule_name, anime_info, is_search, is_lock, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			rule_name = excluded.rule_name,
			anime_info = excluded.anime_info,
			is_search = excluded.is_search,
			is_lock = excluded.is_lock,
			progress = excluded.progress
	`

	if _, err := s.db.ExecContext(ctx, query, status.AnimeInfo.ID, status.Status, status.RuleName, info, status.IsSearch, status.IsLock, status.Progress); err != nil {
		return fmt.Errorf("save anime %d: %w", status.AnimeInfo.ID, err)
	}
	return nil
}

// ApplyCalendar folds freshly synced snapshots into the table. Unknown
// series are inserted with defaults; known series get only their
// anime_info overlaid, and locked rows are left entirely alone.
func (s *AnimeStatusStore) ApplyCalendar(ctx context.Context, infos []AnimeInfo) error {
	for _, info := range infos {
		existing, err := s.Get(ctx, info.ID)
		if err != nil {
			if !errors.Is(err, ErrAnimeNotFound) {
				return err
			}
			status := &AnimeStatus{AnimeInfo: info, Status: WatchStatusWatching}
			if err := s.Save(ctx, status); err != nil {
				return err
			}
			continue
		}

		if existing.IsLock {
			continue
		}
		existing.AnimeInfo = info
		if err := s.Save(ctx, existing); err != nil {
			return err
		}
	}
	return nil
}
