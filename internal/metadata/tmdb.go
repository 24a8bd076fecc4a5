// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// SearchKind selects the TMDB search endpoint.
type SearchKind string

const (
	SearchTV    SearchKind = "tv"
	SearchMovie SearchKind = "movie"
	SearchMulti SearchKind = "multi"
)

// TMDBClient is a thin client for the media database.
type TMDBClient struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewTMDBClient builds a client authenticated with a bearer token.
// baseURL is overridable for tests; empty means the public API.
func NewTMDBClient(token, baseURL string) *TMDBClient {
	if baseURL == "" {
		baseURL = tmdbBaseURL
	}
	return &TMDBClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		token:   token,
	}
}

// SearchResult is one series candidate.
type SearchResult struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	OriginalLanguage string `json:"original_language"`
	FirstAirDate     string `json:"first_air_date"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Season is one season entry of a series.
type Season struct {
	SeasonNumber int    `json:"season_number"`
	AirDate      string `json:"air_date"`
	EpisodeCount int    `json:"episode_count"`
}

// SeriesDetails is the subset of series metadata the tracker consumes.
type SeriesDetails struct {
	Name    string   `json:"name"`
	Seasons []Season `json:"seasons"`
}

type alternativeTitlesResponse struct {
	Results []struct {
		Title string `json:"title"`
	} `json:"results"`
}

func (c *TMDBClient) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Search queries the media database. lang defaults to ja when empty.
func (c *TMDBClient) Search(ctx context.Context, kind SearchKind, query, lang string) ([]SearchResult, error) {
	if lang == "" {
		lang = "ja"
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "true")
	params.Set("language", lang)

	var resp searchResponse
	if err := c.getJSON(ctx, "/search/"+string(kind), params, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return resp.Results, nil
}

// GetSeriesDetails fetches a series with its season list.
func (c *TMDBClient) GetSeriesDetails(ctx context.Context, seriesID int64, lang string) (*SeriesDetails, error) {
	if lang == "" {
		lang = "ja"
	}
	params := url.Values{}
	params.Set("language", lang)

	var details SeriesDetails
	if err := c.getJSON(ctx, fmt.Sprintf("/tv/%d", seriesID), params, &details); err != nil {
		return nil, fmt.Errorf("series %d: %w", seriesID, err)
	}
	return &details, nil
}

// GetAlternativeTitles fetches every known alias of a series.
func (c *TMDBClient) GetAlternativeTitles(ctx context.Context, seriesID int64) ([]string, error) {
	var resp alternativeTitlesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/tv/%d/alternative_titles", seriesID), nil, &resp); err != nil {
		return nil, fmt.Errorf("alternative titles %d: %w", seriesID, err)
	}
	titles := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Title != "" {
			titles = append(titles, r.Title)
		}
	}
	return titles, nil
}
