// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata talks to the schedule provider (Bangumi) and the
// media database (TMDB) and assembles tracked-series snapshots.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const bangumiBaseURL = "https://api.bgm.tv"

// CalendarAnime is one broadcast-calendar entry that survived filtering:
// a declared episode count and a resolvable air date.
type CalendarAnime struct {
	ID      int64
	Name    string
	Weekday int
	Eps     int
	AirDate string
}

// BangumiClient fetches the rotating broadcast calendar.
type BangumiClient struct {
	http    *http.Client
	baseURL string
}

// NewBangumiClient builds a client. baseURL is overridable for tests;
// empty means the public API.
func NewBangumiClient(baseURL string) *BangumiClient {
	if baseURL == "" {
		baseURL = bangumiBaseURL
	}
	return &BangumiClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

type bangumiWeekday struct {
	Weekday struct {
		ID int `json:"id"`
	} `json:"weekday"`
	Items []bangumiSubject `json:"items"`
}

type bangumiSubject struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Eps     int    `json:"eps"`
	AirDate string `json:"air_date"`
}

func (c *BangumiClient) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "yanami")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bangumi %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// GetCalendarAnime returns the current broadcast calendar. Entries whose
// subject lookup fails are skipped, as are entries with no episode count
// or no air date.
func (c *BangumiClient) GetCalendarAnime(ctx context.Context) ([]CalendarAnime, error) {
	var calendar []bangumiWeekday
	if err := c.getJSON(ctx, c.baseURL+"/calendar", &calendar); err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}

	var entries []CalendarAnime
	for _, day := range calendar {
		for _, item := range day.Items {
			subject, err := c.getSubject(ctx, item.ID)
			if err != nil {
				log.Warn().Err(err).Int64("id", item.ID).Msg("skip calendar entry, subject lookup failed")
				continue
			}
			if subject == nil {
				continue
			}
			if subject.Eps <= 0 {
				continue
			}
			if subject.AirDate == "" {
				if item.AirDate == "" {
					continue
				}
				subject.AirDate = item.AirDate
			}
			entries = append(entries, CalendarAnime{
				ID:      subject.ID,
				Name:    subject.Name,
				Weekday: day.Weekday.ID,
				Eps:     subject.Eps,
				AirDate: subject.AirDate,
			})
		}
	}
	return entries, nil
}

// getSubject returns nil without error when the subject does not exist.
func (c *BangumiClient) getSubject(ctx context.Context, id int64) (*bangumiSubject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v0/subjects/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "yanami")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var subject bangumiSubject
	if err := json.NewDecoder(resp.Body).Decode(&subject); err != nil {
		return nil, err
	}
	return &subject, nil
}
