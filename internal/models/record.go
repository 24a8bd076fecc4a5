// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autobrr/yanami/internal/dbinterface"
)

var ErrRecordNotFound = errors.New("anime record not found")

// AnimeRecord is one admitted torrent for a series. Immutable once written;
// (AnimeID, InfoHash) is the primary key.
type AnimeRecord struct {
	AnimeID  int64  `json:"anime_id"`
	Title    string `json:"title"`
	Magnet   string `json:"magnet"`
	RuleName string `json:"rule_name"`
	InfoHash string `json:"info_hash"`
}

// AnimeRecordStore persists admitted download records.
type AnimeRecordStore struct {
	db dbinterface.Querier
}

func NewAnimeRecordStore(db dbinterface.Querier) *AnimeRecordStore {
	return &AnimeRecordStore{db: db}
}

// Get retrieves the record for (animeID, infoHash).
func (s *AnimeRecordStore) Get(ctx context.Context, animeID int64, infoHash string) (*AnimeRecord, error) {
	query := `
		SELECT anime_id, title, magnet, rule_name, info_hash
		FROM anime_record
		WHERE anime_id = ? AND info_hash = ?
	`

	var rec AnimeRecord
	err := s.db.QueryRowContext(ctx, query, animeID, infoHash).Scan(
		&rec.AnimeID, &rec.Title, &rec.Magnet, &rec.RuleName, &rec.InfoHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get anime record: %w", err)
	}
	return &rec, nil
}

// ListByAnime retrieves all records for one series in insertion order.
func (s *AnimeRecordStore) ListByAnime(ctx context.Context, animeID int64) ([]*AnimeRecord, error) {
	query := `
		SELECT anime_id, title, magnet, rule_name, info_hash
		FROM anime_record
		WHERE anime_id = ?
		ORDER BY created_at, info_hash
	`

	rows, err := s.db.QueryContext(ctx, query, animeID)
	if err != nil {
		return nil, fmt.Errorf("list anime records: %w", err)
	}
	defer rows.Close()

	var records []*AnimeRecord
	for rows.Next() {
		var rec AnimeRecord
		if err := rows.Scan(&rec.AnimeID, &rec.Title, &rec.Magnet, &rec.RuleName, &rec.InfoHash); err != nil {
			return nil, fmt.Errorf("scan anime record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anime records: %w", err)
	}
	return records, nil
}

// Insert writes the record. A concurrent duplicate insert is a benign
// race: the existing row wins and no error is returned.
func (s *AnimeRecordStore) Insert(ctx context.Context, rec *AnimeRecord) error {
	query := `
		INSERT OR IGNORE INTO anime_record (anime_id, title, magnet, rule_name, info_hash)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, rec.AnimeID, rec.Title, rec.Magnet, rec.RuleName, rec.InfoHash); err != nil {
		return fmt.Errorf("insert anime record: %w", err)
	}
	return nil
}
