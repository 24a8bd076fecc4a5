// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/yanami/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAnimeInfoNames(t *testing.T) {
	t.Parallel()

	info := AnimeInfo{Name: "Foo", NameTW: "呼", NameCN: ""}
	assert.Equal(t, []string{"Foo", "呼"}, info.Names())

	info.AlternativeTitles = []string{"Foo!", "Foo S2"}
	assert.Equal(t, []string{"Foo!", "Foo S2"}, info.Names(), "alternative titles are authoritative when present")

	empty := AnimeInfo{}
	assert.Empty(t, empty.Names())
}

func TestAnimeStatusStoreSaveGet(t *testing.T) {
	db := newTestDB(t)
	store := NewAnimeStatusStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrAnimeNotFound)

	status := &AnimeStatus{
		AnimeInfo: AnimeInfo{
			ID: 1, Name: "Foo", SearchName: "Foo",
			Eps: 12, Season: 2, AirDate: "2024-07-01", Weekday: 3,
			AlternativeTitles: []string{"Foo", "呼"},
		},
		Status:   WatchStatusWatching,
		RuleName: "group-a",
		Progress: 4,
		IsSearch: true,
	}
	require.NoError(t, store.Save(ctx, status))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, status, got)

	watching, err := store.ListWatching(ctx)
	require.NoError(t, err)
	require.Len(t, watching, 1)

	got.Status = WatchStatusRetired
	require.NoError(t, store.Save(ctx, got))

	watching, err = store.ListWatching(ctx)
	require.NoError(t, err)
	assert.Empty(t, watching)
}

func TestAnimeStatusStoreApplyCalendar(t *testing.T) {
	db := newTestDB(t)
	store := NewAnimeStatusStore(db)
	ctx := context.Background()

	first := AnimeInfo{ID: 1, Name: "Foo", Eps: 12, Season: 1, AirDate: "2024-07-01"}
	require.NoError(t, store.ApplyCalendar(ctx, []AnimeInfo{first}))

	created, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, WatchStatusWatching, created.Status)
	assert.Empty(t, created.RuleName)
	assert.Zero(t, created.Progress)

	// sticky state survives a resync; only the snapshot is overlaid
	created.RuleName = "group-a"
	created.Progress = 3
	require.NoError(t, store.Save(ctx, created))

	resynced := first
	resynced.Eps = 13
	require.NoError(t, store.ApplyCalendar(ctx, []AnimeInfo{resynced}))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 13, got.AnimeInfo.Eps)
	assert.Equal(t, "group-a", got.RuleName)
	assert.Equal(t, 3, got.Progress)
}

func TestAnimeStatusStoreApplyCalendarHonorsLock(t *testing.T) {
	db := newTestDB(t)
	store := NewAnimeStatusStore(db)
	ctx := context.Background()

	info := AnimeInfo{ID: 7, Name: "Bar", Eps: 12, Season: 1, AirDate: "2024-07-01"}
	require.NoError(t, store.Save(ctx, &AnimeStatus{AnimeInfo: info, Status: WatchStatusWatching, IsLock: true}))

	changed := info
	changed.Name = "Bar (retitled)"
	changed.Eps = 24
	require.NoError(t, store.ApplyCalendar(ctx, []AnimeInfo{changed}))

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Bar", got.AnimeInfo.Name, "locked status must not be overwritten by calendar sync")
	assert.Equal(t, 12, got.AnimeInfo.Eps)
}
