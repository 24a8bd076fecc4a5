// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package rssfetch pulls torrent RSS channels and normalizes their items.
package rssfetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one normalized feed entry. URL is the enclosure when present,
// otherwise the link. PubDate is the raw channel string (RFC 2822 in the
// feeds we consume); empty when the feed omits it.
type Item struct {
	Title   string
	URL     string
	PubDate string
}

// Fetcher downloads and parses RSS 2.0 channels.
type Fetcher struct {
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 60 * time.Second}
	parser.UserAgent = "yanami"
	return &Fetcher{parser: parser}
}

// Fetch returns the channel's items. Entries without a usable URL are
// dropped here; title and pub-date gating belong to the caller.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		url := ""
		for _, enc := range entry.Enclosures {
			if enc != nil && enc.URL != "" {
				url = enc.URL
				break
			}
		}
		if url == "" {
			url = entry.Link
		}
		if url == "" {
			continue
		}
		items = append(items, Item{
			Title:   entry.Title,
			URL:     url,
			PubDate: entry.Published,
		})
	}
	return items, nil
}
