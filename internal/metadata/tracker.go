// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

var (
	cnSeasonRe  = regexp.MustCompile("第[0-9]+期")
	enSeasonRe  = regexp.MustCompile("Season.*?$")
	endNumberRe = regexp.MustCompile(`\d+$`)
)

// Tracker enriches broadcast-calendar entries with media-database
// metadata to mint AnimeInfo snapshots.
type Tracker struct {
	tmdb *TMDBClient
	bgm  *BangumiClient
}

func NewTracker(tmdb *TMDBClient, bgm *BangumiClient) *Tracker {
	return &Tracker{tmdb: tmdb, bgm: bgm}
}

// sanitizeName strips season suffixes so the base title is searchable.
func sanitizeName(name string) string {
	name = strings.TrimSpace(cnSeasonRe.ReplaceAllString(name, ""))
	name = strings.TrimSpace(enSeasonRe.ReplaceAllString(name, ""))
	return strings.TrimSpace(endNumberRe.ReplaceAllString(name, ""))
}

// sameYearMonth reports whether two YYYY-MM-DD dates share year and month.
func sameYearMonth(a, b string) bool {
	return len(a) >= 7 && len(b) >= 7 && a[:7] == b[:7]
}

// GetCalendar fetches the schedule and enriches each entry. Entries that
// cannot be resolved against the media database are skipped with a log.
func (t *Tracker) GetCalendar(ctx context.Context) ([]models.AnimeInfo, error) {
	entries, err := t.bgm.GetCalendarAnime(ctx)
	if err != nil {
		return nil, err
	}

	var infos []models.AnimeInfo
	for _, entry := range entries {
		info, err := t.enrich(ctx, entry)
		if err != nil {
			log.Warn().Err(err).Int64("id", entry.ID).Str("name", entry.Name).Msg("skip calendar entry")
			continue
		}
		if info != nil {
			infos = append(infos, *info)
		}
	}
	return infos, nil
}

// enrich returns nil without error when the entry is legitimately not a
// match (no results, not Japanese, no usable season).
func (t *Tracker) enrich(ctx context.Context, entry CalendarAnime) (*models.AnimeInfo, error) {
	searchName := sanitizeName(entry.Name)
	if searchName == "" {
		return nil, nil
	}

	results, err := t.tmdb.Search(ctx, SearchTV, searchName, "zh-TW")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	// prefer the result airing the same year+month as the schedule entry
	res := results[0]
	for _, r := range results {
		if sameYearMonth(r.FirstAirDate, entry.AirDate) {
			res = r
			break
		}
	}
	if res.OriginalLanguage != "ja" {
		return nil, nil
	}

	details, err := t.tmdb.GetSeriesDetails(ctx, res.ID, "zh-CN")
	if err != nil {
		return nil, err
	}
	if len(details.Seasons) == 0 {
		return nil, nil
	}
	season := details.Seasons[len(details.Seasons)-1]
	if season.SeasonNumber <= 0 {
		return nil, nil
	}

	eps := entry.Eps
	if eps <= 0 {
		eps = season.EpisodeCount
	}
	if eps <= 0 {
		return nil, nil
	}

	airDate := season.AirDate
	if airDate == "" {
		airDate = entry.AirDate
	}

	altTitles, err := t.tmdb.GetAlternativeTitles(ctx, res.ID)
	if err != nil {
		log.Debug().Err(err).Int64("series", res.ID).Msg("alternative titles unavailable")
		altTitles = nil
	}

	info := &models.AnimeInfo{
		ID:         entry.ID,
		Name:       entry.Name,
		NameCN:     details.Name,
		NameTW:     res.Name,
		SearchName: searchName,
		Weekday:    entry.Weekday,
		Eps:        eps,
		Season:     season.SeasonNumber,
		AirDate:    airDate,
	}
	info.AlternativeTitles = unionTitles(altTitles, info.Name, info.NameCN, info.NameTW)
	return info, nil
}

// unionTitles merges provider aliases with the primary titles, deduped,
// dropping empties, preserving first-seen order.
func unionTitles(alt []string, primaries ...string) []string {
	seen := make(map[string]struct{}, len(alt)+len(primaries))
	var out []string
	for _, title := range append(append([]string{}, alt...), primaries...) {
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, title)
	}
	return out
}
