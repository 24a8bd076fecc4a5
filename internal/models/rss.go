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

var ErrFeedNotFound = errors.New("rss feed not found")

// Feed is one torrent RSS source. URL is an optional whole-site feed;
// SearchURL is an optional format template with one {} placeholder that
// receives a series alias.
type Feed struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	SearchURL string `json:"search_url,omitempty"`
}

// FeedStore persists RSS sources.
type FeedStore struct {
	db dbinterface.Querier
}

func NewFeedStore(db dbinterface.Querier) *FeedStore {
	return &FeedStore{db: db}
}

// List retrieves all feeds.
func (s *FeedStore) List(ctx context.Context) ([]*Feed, error) {
	query := `SELECT id, title, COALESCE(url, ''), COALESCE(search_url, '') FROM rss ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		var feed Feed
		if err := rows.Scan(&feed.ID, &feed.Title, &feed.URL, &feed.SearchURL); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

// Create inserts a feed and returns it with its assigned id.
func (s *FeedStore) Create(ctx context.Context, feed *Feed) (*Feed, error) {
	query := `INSERT INTO rss (title, url, search_url) VALUES (?, NULLIF(?, ''), NULLIF(?, ''))`

	result, err := s.db.ExecContext(ctx, query, feed.Title, feed.URL, feed.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	feed.ID = id
	return feed, nil
}

// Get retrieves one feed by id.
func (s *FeedStore) Get(ctx context.Context, id int64) (*Feed, error) {
	query := `SELECT id, title, COALESCE(url, ''), COALESCE(search_url, '') FROM rss WHERE id = ?`

	var feed Feed
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&feed.ID, &feed.Title, &feed.URL, &feed.SearchURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedNotFound
		}
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	return &feed, nil
}

// Update replaces the feed row.
func (s *FeedStore) Update(ctx context.Context, feed *Feed) error {
	query := `UPDATE rss SET title = ?, url = NULLIF(?, ''), search_url = NULLIF(?, '') WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, feed.Title, feed.URL, feed.SearchURL, feed.ID)
	if err != nil {
		return fmt.Errorf("update feed %d: %w", feed.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feed %d: %w", feed.ID, err)
	}
	if affected == 0 {
		return ErrFeedNotFound
	}
	return nil
}

// Delete removes a feed by id.
func (s *FeedStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rss WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete feed %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete feed %d: %w", id, err)
	}
	if affected == 0 {
		return ErrFeedNotFound
	}
	return nil
}
