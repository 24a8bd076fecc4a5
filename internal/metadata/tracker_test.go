// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"無職転生 第2期", "無職転生"},
		{"Mushoku Tensei Season 2", "Mushoku Tensei"},
		{"Overlord IV 4", "Overlord IV"},
		{"Frieren", "Frieren"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), tt.in)
	}
}

func TestSameYearMonth(t *testing.T) {
	t.Parallel()

	assert.True(t, sameYearMonth("2024-07-01", "2024-07-15"))
	assert.False(t, sameYearMonth("2024-07-01", "2024-08-01"))
	assert.False(t, sameYearMonth("", "2024-07-01"))
}

func TestTrackerGetCalendar(t *testing.T) {
	bgmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/calendar":
			json.NewEncoder(w).Encode([]map[string]any{
				{
					"weekday": map[string]any{"id": 3},
					"items": []map[string]any{
						{"id": 100, "name": "Foo 第2期"},
						{"id": 200, "name": "NoEps Show"},
					},
				},
			})
		case r.URL.Path == "/v0/subjects/100":
			json.NewEncoder(w).Encode(map[string]any{
				"id": 100, "name": "Foo 第2期", "eps": 12, "air_date": "2024-07-03",
			})
		case r.URL.Path == "/v0/subjects/200":
			// no declared episode count: filtered out
			json.NewEncoder(w).Encode(map[string]any{
				"id": 200, "name": "NoEps Show", "eps": 0, "air_date": "2024-07-01",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer bgmSrv.Close()

	tmdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/tv"):
			assert.Equal(t, "Foo", r.URL.Query().Get("query"))
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": 1, "name": "不存在", "original_language": "ja", "first_air_date": "2021-01-10"},
					{"id": 2, "name": "呼", "original_language": "ja", "first_air_date": "2024-07-05"},
				},
			})
		case r.URL.Path == "/tv/2":
			json.NewEncoder(w).Encode(map[string]any{
				"name": "呼 第二季",
				"seasons": []map[string]any{
					{"season_number": 1, "air_date": "2021-01-10", "episode_count": 11},
					{"season_number": 2, "air_date": "2024-07-05", "episode_count": 12},
				},
			})
		case r.URL.Path == "/tv/2/alternative_titles":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{"title": "Foo!"}, {"title": "呼"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer tmdbSrv.Close()

	tracker := NewTracker(NewTMDBClient("token", tmdbSrv.URL), NewBangumiClient(bgmSrv.URL))
	infos, err := tracker.GetCalendar(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	info := infos[0]
	assert.Equal(t, int64(100), info.ID)
	assert.Equal(t, "Foo 第2期", info.Name)
	assert.Equal(t, "Foo", info.SearchName)
	assert.Equal(t, "呼 第二季", info.NameCN)
	assert.Equal(t, "呼", info.NameTW)
	assert.Equal(t, 2, info.Season)
	assert.Equal(t, 12, info.Eps)
	assert.Equal(t, "2024-07-05", info.AirDate, "season air date wins over schedule air date")
	assert.Equal(t, []string{"Foo!", "呼", "Foo 第2期", "呼 第二季"}, info.AlternativeTitles)
	assert.Equal(t, 3, info.Weekday)
}

func TestTrackerSkipsNonJapanese(t *testing.T) {
	bgmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calendar":
			json.NewEncoder(w).Encode([]map[string]any{
				{"weekday": map[string]any{"id": 1}, "items": []map[string]any{{"id": 7, "name": "Donghua"}}},
			})
		case "/v0/subjects/7":
			json.NewEncoder(w).Encode(map[string]any{"id": 7, "name": "Donghua", "eps": 12, "air_date": "2024-07-01"})
		}
	}))
	defer bgmSrv.Close()

	tmdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/search/tv") {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{"id": 9, "name": "Donghua", "original_language": "zh", "first_air_date": "2024-07-01"}},
			})
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer tmdbSrv.Close()

	tracker := NewTracker(NewTMDBClient("token", tmdbSrv.URL), NewBangumiClient(bgmSrv.URL))
	infos, err := tracker.GetCalendar(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}
