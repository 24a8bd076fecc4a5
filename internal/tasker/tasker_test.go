// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/yanami/internal/database"
	"github.com/autobrr/yanami/internal/models"
	"github.com/autobrr/yanami/internal/rssfetch"
)

const fooMagnet = "magnet:?xt=urn:btih:QD7JCARCSCDDPOXKNLPLITPET4GFCJDU"
const fooHash = "80fe910222908637baea6adeb44de49f0c512474"

type downloadCall struct {
	Cfg      models.QbitConfig
	Magnet   string
	SavePath string
	Hash     string
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []downloadCall
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, cfg models.QbitConfig, magnet, savePath, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, downloadCall{Cfg: cfg, Magnet: magnet, SavePath: savePath, Hash: hash})
	return f.err
}

func (f *fakeDownloader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFetcher struct {
	mu    sync.Mutex
	feeds map[string][]rssfetch.Item
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]rssfetch.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeds[url], nil
}

type fakeTracker struct {
	infos []models.AnimeInfo
}

func (f *fakeTracker) GetCalendar(context.Context) ([]models.AnimeInfo, error) {
	return f.infos, nil
}

type engineFixture struct {
	tasker     *Tasker
	statuses   *models.AnimeStatusStore
	records    *models.AnimeRecordStore
	rules      *models.RuleStore
	feeds      *models.FeedStore
	settings   *models.SettingsStore
	downloader *fakeDownloader
	fetcher    *fakeFetcher
	tracker    *fakeTracker
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &engineFixture{
		statuses:   models.NewAnimeStatusStore(db),
		records:    models.NewAnimeRecordStore(db),
		rules:      models.NewRuleStore(db),
		feeds:      models.NewFeedStore(db),
		settings:   models.NewSettingsStore(db),
		downloader: &fakeDownloader{},
		fetcher:    &fakeFetcher{feeds: map[string][]rssfetch.Item{}},
		tracker:    &fakeTracker{},
	}
	f.tasker = New(Config{}, f.statuses, f.records, f.rules, f.feeds, f.settings,
		f.tracker, f.fetcher, f.downloader)
	return f
}

func (f *engineFixture) seedSettings(t *testing.T, ctx context.Context) {
	t.Helper()
	require.NoError(t, f.settings.SetDownloadPath(ctx, "/downloads"))
	require.NoError(t, f.settings.SetQbitConfig(ctx, &models.QbitConfig{
		URL: "http://qbit:8080", Username: "admin", Password: "pass",
	}))
}

func fooStatus() models.AnimeStatus {
	return models.AnimeStatus{
		AnimeInfo: models.AnimeInfo{
			ID: 1, Name: "Foo", SearchName: "Foo",
			Eps: 12, Season: 1, AirDate: "2024-07-01",
		},
		Status: models.WatchStatusWatching,
	}
}

func (f *engineFixture) newListener(status models.AnimeStatus) *listener {
	return &listener{
		status:   status,
		sub:      &subscription{},
		statuses: f.statuses,
		admitter: f.tasker.admitter,
	}
}

// Feed item to dispatched record, end to end through checkUpdate, the
// broadcast fan-out and the listener.
func TestFeedItemAdmitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newEngineFixture(t)
	f.seedSettings(t, ctx)
	require.NoError(t, f.rules.Set(ctx, &models.Rule{Name: "group-a", Re: `\[Group\].*?\b\d{2}\b`}))
	_, err := f.feeds.Create(ctx, &models.Feed{Title: "site", URL: "feed://site"})
	require.NoError(t, err)

	status := fooStatus()
	require.NoError(t, f.statuses.Save(ctx, &status))

	f.fetcher.feeds["feed://site"] = []rssfetch.Item{
		{Title: "[Group] Foo - 03 [1080p]", URL: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000"},
		{Title: "[Group] Bar - 01 [1080p]", URL: "magnet:?xt=urn:btih:" + fmt.Sprintf("%040d", 1), PubDate: "Wed, 10 Jul 2024 00:00:00 +0000"},
		{Title: "no pub date", URL: fooMagnet},
	}

	go f.tasker.fanOutBroadcast(ctx)
	go f.tasker.supervise(ctx)
	f.tasker.StartListener(ctx, status)

	f.tasker.checkUpdate(ctx)

	require.Eventually(t, func() bool {
		_, err := f.records.Get(ctx, 1, fooHash)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "record should be written")

	rec, err := f.records.Get(ctx, 1, fooHash)
	require.NoError(t, err)
	assert.Equal(t, "group-a", rec.RuleName)
	assert.Equal(t, fooMagnet, rec.Magnet)

	saved, err := f.statuses.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "group-a", saved.RuleName, "first matching rule sticks")
	assert.Equal(t, 0, saved.Progress, "fewer than three records gives no progress")

	require.Equal(t, 1, f.downloader.callCount(), "Bar item must not reach Foo's admitter")
	call := f.downloader.calls[0]
	assert.Equal(t, filepath.Join("/downloads", "Foo", "S01"), call.SavePath)
	assert.Equal(t, fooHash, call.Hash)
	assert.Equal(t, "http://qbit:8080", call.Cfg.URL)
}

// A second identical poll cycle produces no extra dispatches or records.
func TestRepeatedPollIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newEngineFixture(t)
	f.seedSettings(t, ctx)
	require.NoError(t, f.rules.Set(ctx, &models.Rule{Name: "group-a", Re: "Foo"}))
	_, err := f.feeds.Create(ctx, &models.Feed{Title: "site", URL: "feed://site"})
	require.NoError(t, err)

	status := fooStatus()
	require.NoError(t, f.statuses.Save(ctx, &status))
	f.fetcher.feeds["feed://site"] = []rssfetch.Item{
		{Title: "Foo - 03", URL: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000"},
	}

	go f.tasker.fanOutBroadcast(ctx)
	f.tasker.StartListener(ctx, status)

	f.tasker.checkUpdate(ctx)
	require.Eventually(t, func() bool { return f.downloader.callCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	f.tasker.checkUpdate(ctx)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 1, f.downloader.callCount(), "duplicate item must not re-dispatch")
	recs, err := f.records.ListByAnime(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// Search feeds go through the template and the targeted inbox.
func TestSearchFeedTargetsListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newEngineFixture(t)
	f.seedSettings(t, ctx)
	require.NoError(t, f.rules.Set(ctx, &models.Rule{Name: "group-a", Re: "Foo"}))
	_, err := f.feeds.Create(ctx, &models.Feed{Title: "search", SearchURL: "feed://search?q={}"})
	require.NoError(t, err)

	status := fooStatus()
	status.IsSearch = true
	require.NoError(t, f.statuses.Save(ctx, &status))
	f.fetcher.feeds["feed://search?q=Foo"] = []rssfetch.Item{
		{Title: "Foo - 05", URL: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000"},
	}

	f.tasker.StartListener(ctx, status)
	f.tasker.checkUpdate(ctx)

	require.Eventually(t, func() bool {
		_, err := f.records.Get(ctx, 1, fooHash)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEvaluateDateGate(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.AnimeInfo.AirDate = "2024-02-01"
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	// eight days of slack is not enough for an item a month early
	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Mon, 01 Jan 2024", RuleName: "group-a"})
	assert.Equal(t, 0, f.downloader.callCount())

	// one week early is within the slack
	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Mon, 25 Jan 2024", RuleName: "group-a"})
	assert.Equal(t, 1, f.downloader.callCount())
}

func TestEvaluateUnparseableDateSkipsGate(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.AnimeInfo.AirDate = "2024-02-01"
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "whenever", RuleName: "group-a"})
	assert.Equal(t, 1, f.downloader.callCount())
}

func TestEvaluateNameGate(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.AnimeInfo.AlternativeTitles = []string{"Foo!", "呼"}
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	// "Foo" alone is not an alias once alternative titles exist
	l.evaluate(ctx, RssItem{Title: "[Sub] Foo - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})
	assert.Equal(t, 0, f.downloader.callCount())

	l.evaluate(ctx, RssItem{Title: "[Sub] 呼 - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})
	assert.Equal(t, 1, f.downloader.callCount())
}

func TestEvaluateStickyRule(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.RuleName = "group-a"
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-b"})
	assert.Equal(t, 0, f.downloader.callCount(), "item tagged by a different rule is dropped")

	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})
	assert.Equal(t, 1, f.downloader.callCount())
}

func TestEvaluatePicksUpOperatorEdits(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	// operator renames the series behind the listener's back
	edited := status
	edited.AnimeInfo.Name = "Renamed"
	require.NoError(t, f.statuses.Save(ctx, &edited))

	l.evaluate(ctx, RssItem{Title: "Renamed - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})
	assert.Equal(t, 1, f.downloader.callCount(), "refreshed anime_info is used for the name gate")
}

func TestAdmitMissingConfigFails(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	// no settings seeded

	status := fooStatus()
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})

	assert.Equal(t, 0, f.downloader.callCount())
	_, err := f.records.Get(ctx, 1, fooHash)
	assert.ErrorIs(t, err, models.ErrRecordNotFound, "no record without a successful dispatch")
}

func TestAdmitDispatchFailureWritesNoRecord(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)
	f.downloader.err = fmt.Errorf("client unreachable")

	status := fooStatus()
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	l.evaluate(ctx, RssItem{Title: "Foo - 01", Magnet: fooMagnet, PubDate: "Wed, 10 Jul 2024 00:00:00 +0000", RuleName: "group-a"})

	_, err := f.records.Get(ctx, 1, fooHash)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

// Progress accumulates across admits and retires the series at eps.
func TestProgressAndRetirement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.AnimeInfo.Eps = 3
	status.RuleName = "group-a"
	require.NoError(t, f.statuses.Save(ctx, &status))

	go f.tasker.supervise(ctx)
	f.tasker.StartListener(ctx, status)
	require.Equal(t, 1, f.tasker.listenerCount())

	l := f.newListener(status)
	for ep := 1; ep <= 3; ep++ {
		l.evaluate(ctx, RssItem{
			Title:    fmt.Sprintf("Foo - %02d [1080p]", ep),
			Magnet:   fmt.Sprintf("magnet:?xt=urn:btih:%038d%02d", 0, ep),
			PubDate:  "Wed, 10 Jul 2024 00:00:00 +0000",
			RuleName: "group-a",
		})
	}

	saved, err := f.statuses.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Progress)
	assert.Equal(t, models.WatchStatusRetired, saved.Status)

	require.Eventually(t, func() bool { return f.tasker.listenerCount() == 0 },
		5*time.Second, 10*time.Millisecond, "supervisor evicts the retired listener")
}

func TestZeroEpsNeverRetires(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedSettings(t, ctx)

	status := fooStatus()
	status.AnimeInfo.Eps = 0
	status.RuleName = "group-a"
	require.NoError(t, f.statuses.Save(ctx, &status))
	l := f.newListener(status)

	for ep := 1; ep <= 4; ep++ {
		l.evaluate(ctx, RssItem{
			Title:    fmt.Sprintf("Foo - %02d [1080p]", ep),
			Magnet:   fmt.Sprintf("magnet:?xt=urn:btih:%038d%02d", 0, ep),
			PubDate:  "Wed, 10 Jul 2024 00:00:00 +0000",
			RuleName: "group-a",
		})
	}

	saved, err := f.statuses.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Progress)
	assert.Equal(t, models.WatchStatusWatching, saved.Status, "unknown episode count waits indefinitely")
}

func TestSyncCalendarStartsAndSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newEngineFixture(t)

	retired := fooStatus()
	retired.AnimeInfo.ID = 2
	retired.Status = models.WatchStatusRetired
	require.NoError(t, f.statuses.Save(ctx, &retired))

	f.tracker.infos = []models.AnimeInfo{
		{ID: 1, Name: "Foo", SearchName: "Foo", Eps: 12, Season: 1, AirDate: "2024-07-01"},
		retired.AnimeInfo,
	}

	f.tasker.syncCalendar(ctx)

	assert.Equal(t, 1, f.tasker.listenerCount(), "retired series gets no listener")

	saved, err := f.statuses.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.WatchStatusWatching, saved.Status)
}

func TestFormatSearchURL(t *testing.T) {
	t.Parallel()

	got, err := formatSearchURL("https://site/rss?q={}", "Foo 2期")
	require.NoError(t, err)
	assert.Equal(t, "https://site/rss?q=Foo+2%E6%9C%9F", got)

	_, err = formatSearchURL("https://site/rss?q=", "Foo")
	assert.Error(t, err)
}

func TestParsePubDateLayouts(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"Wed, 10 Jul 2024 00:00:00 +0000",
		"Wed, 10 Jul 2024 00:00:00 GMT",
		"Mon, 1 Jan 2024",
	} {
		_, err := parsePubDate(s)
		assert.NoError(t, err, s)
	}
	_, err := parsePubDate("2024-07-10")
	assert.Error(t, err)
}
