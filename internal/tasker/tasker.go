// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tasker is the tracking, matching and dispatch engine: it syncs
// the broadcast calendar, polls torrent feeds, fans items out to one
// listener per watched series, and admits matches to the torrent client.
package tasker

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
	"github.com/autobrr/yanami/internal/rssfetch"
)

const (
	broadcastBusCap  = 100_000
	inboxCap         = 10_000
	retirementBusCap = 128
	consumerBufCap   = 1_024
)

// RssItem is one tagged feed entry in flight on a bus.
type RssItem struct {
	Title    string
	Magnet   string
	PubDate  string
	RuleName string
}

// AnimeTask asks the supervisor (and the listener itself) to retire a
// series.
type AnimeTask struct {
	Info   models.AnimeInfo
	Cancel bool
}

// CalendarProvider mints enriched series snapshots from the schedule.
type CalendarProvider interface {
	GetCalendar(ctx context.Context) ([]models.AnimeInfo, error)
}

// FeedFetcher pulls one RSS channel.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]rssfetch.Item, error)
}

// TorrentDownloader submits a magnet to the torrent client and verifies
// it landed.
type TorrentDownloader interface {
	Download(ctx context.Context, cfg models.QbitConfig, magnet, savePath, infoHash string) error
}

// InfoHasher resolves a magnet or torrent URL to its info-hash.
type InfoHasher interface {
	Derive(ctx context.Context, url string) (string, error)
}

// Config holds the engine's tick intervals.
type Config struct {
	CalendarSyncInterval time.Duration
	FeedPollInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.CalendarSyncInterval <= 0 {
		c.CalendarSyncInterval = 12 * time.Hour
	}
	if c.FeedPollInterval <= 0 {
		c.FeedPollInterval = 5 * time.Minute
	}
	return c
}

// subscription is one listener's receive side of the buses.
type subscription struct {
	inbox  chan RssItem
	bcast  chan RssItem
	retire chan AnimeTask
}

// Tasker owns the tickers, the rule cache, the buses and the map of
// live listeners.
type Tasker struct {
	cfg Config

	statuses *models.AnimeStatusStore
	records  *models.AnimeRecordStore
	rules    *models.RuleStore
	feeds    *models.FeedStore

	tracker  CalendarProvider
	fetcher  FeedFetcher
	admitter *Admitter
	cache    ruleCache

	mu        sync.RWMutex
	listeners map[int64]*subscription
	runCtx    context.Context

	broadcastCh chan RssItem
	retireCh    chan AnimeTask

	started atomic.Bool
}

func New(
	cfg Config,
	statuses *models.AnimeStatusStore,
	records *models.AnimeRecordStore,
	rules *models.RuleStore,
	feeds *models.FeedStore,
	settings *models.SettingsStore,
	tracker CalendarProvider,
	fetcher FeedFetcher,
	torrents TorrentDownloader,
) *Tasker {
	t := &Tasker{
		cfg:         cfg.withDefaults(),
		statuses:    statuses,
		records:     records,
		rules:       rules,
		feeds:       feeds,
		tracker:     tracker,
		fetcher:     fetcher,
		listeners:   make(map[int64]*subscription),
		broadcastCh: make(chan RssItem, broadcastBusCap),
		retireCh:    make(chan AnimeTask, retirementBusCap),
	}
	t.admitter = &Admitter{
		statuses: statuses,
		records:  records,
		settings: settings,
		hasher:   NewHashDeriver(),
		torrents: torrents,
		retire:   t.publishRetirement,
	}
	return t
}

// Run starts the engine and blocks until ctx ends. Calling it twice is
// a no-op.
func (t *Tasker) Run(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	go t.supervise(ctx)
	go t.fanOutBroadcast(ctx)
	t.initAnimeListeners(ctx)
	go t.syncCalendar(ctx)

	calendarTick := time.NewTicker(t.cfg.CalendarSyncInterval)
	defer calendarTick.Stop()
	feedTick := time.NewTicker(t.cfg.FeedPollInterval)
	defer feedTick.Stop()

	log.Info().
		Dur("calendar_interval", t.cfg.CalendarSyncInterval).
		Dur("feed_interval", t.cfg.FeedPollInterval).
		Msg("tasker running")

	for {
		select {
		case <-ctx.Done():
			return
		case <-calendarTick.C:
			go t.syncCalendar(ctx)
		case <-feedTick.C:
			if t.listenerCount() > 0 {
				go t.checkUpdate(ctx)
			}
		}
	}
}

// SyncCalendar runs one calendar-sync cycle immediately.
func (t *Tasker) SyncCalendar(ctx context.Context) {
	t.syncCalendar(ctx)
}

// PollFeeds runs one feed-poll cycle immediately.
func (t *Tasker) PollFeeds(ctx context.Context) {
	t.checkUpdate(ctx)
}

// initAnimeListeners resumes a listener for every watching series.
func (t *Tasker) initAnimeListeners(ctx context.Context) {
	statuses, err := t.statuses.ListWatching(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot load watching series")
		return
	}
	for _, status := range statuses {
		t.StartListener(ctx, *status)
	}
	log.Info().Int("count", len(statuses)).Msg("listeners resumed")
}

// StartListener spawns the per-series worker. Idempotent on series id.
// Listeners outlive the caller: they run on the engine's context once
// Run has started.
func (t *Tasker) StartListener(ctx context.Context, status models.AnimeStatus) {
	id := status.AnimeInfo.ID

	t.mu.Lock()
	if _, ok := t.listeners[id]; ok {
		t.mu.Unlock()
		return
	}
	if t.runCtx != nil {
		ctx = t.runCtx
	}
	sub := &subscription{
		inbox:  make(chan RssItem, inboxCap),
		bcast:  make(chan RssItem, consumerBufCap),
		retire: make(chan AnimeTask, retirementBusCap),
	}
	t.listeners[id] = sub
	t.mu.Unlock()

	l := &listener{
		status:   status,
		sub:      sub,
		statuses: t.statuses,
		admitter: t.admitter,
	}
	go l.run(ctx)
}

// supervise drains the retirement bus: it evicts the series from the
// listener map, then forwards the cancel so the listener loop exits on
// its own observation.
func (t *Tasker) supervise(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-t.retireCh:
			if !task.Cancel {
				continue
			}
			t.mu.Lock()
			sub, ok := t.listeners[task.Info.ID]
			delete(t.listeners, task.Info.ID)
			t.mu.Unlock()
			if ok {
				select {
				case sub.retire <- task:
				default:
				}
			}
		}
	}
}

// fanOutBroadcast forwards the broadcast bus to every listener. A full
// consumer buffer drops the message for that consumer only.
func (t *Tasker) fanOutBroadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-t.broadcastCh:
			t.mu.RLock()
			for id, sub := range t.listeners {
				select {
				case sub.bcast <- item:
				default:
					log.Debug().Int64("anime", id).Str("title", item.Title).Msg("slow listener, broadcast dropped")
				}
			}
			t.mu.RUnlock()
		}
	}
}

func (t *Tasker) publishBroadcast(item RssItem) {
	select {
	case t.broadcastCh <- item:
	default:
		log.Warn().Str("title", item.Title).Msg("broadcast bus full, item dropped")
	}
}

func (t *Tasker) publishRetirement(task AnimeTask) {
	select {
	case t.retireCh <- task:
	default:
		log.Warn().Int64("anime", task.Info.ID).Msg("retirement bus full")
	}
}

// sendTargeted delivers a search-feed item to one listener's inbox.
// A missing listener or a full inbox drops the item.
func (t *Tasker) sendTargeted(id int64, item RssItem) {
	t.mu.RLock()
	sub, ok := t.listeners[id]
	t.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case sub.inbox <- item:
	default:
		log.Debug().Int64("anime", id).Str("title", item.Title).Msg("inbox full, item dropped")
	}
}

func (t *Tasker) listenerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}

func (t *Tasker) listenerIDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	return ids
}

// syncCalendar refreshes the schedule, starts listeners for new or
// still-watching series, and persists the snapshots.
func (t *Tasker) syncCalendar(ctx context.Context) {
	infos, err := t.tracker.GetCalendar(ctx)
	if err != nil {
		log.Error().Err(err).Msg("calendar sync failed")
		return
	}

	for _, info := range infos {
		existing, err := t.statuses.Get(ctx, info.ID)
		switch {
		case err == nil:
			if existing.Status != models.WatchStatusWatching {
				continue
			}
			t.StartListener(ctx, *existing)
		case errors.Is(err, models.ErrAnimeNotFound):
			t.StartListener(ctx, models.AnimeStatus{AnimeInfo: info, Status: models.WatchStatusWatching})
		default:
			log.Error().Err(err).Int64("anime", info.ID).Msg("status lookup failed during sync")
		}
	}

	if err := t.statuses.ApplyCalendar(ctx, infos); err != nil {
		log.Error().Err(err).Msg("cannot persist calendar snapshots")
		return
	}
	log.Info().Int("series", len(infos)).Msg("calendar synced")
}

// checkUpdate reconciles the rule cache once, then polls every feed,
// tagging items against that one snapshot for the whole cycle.
func (t *Tasker) checkUpdate(ctx context.Context) {
	rules, err := t.rules.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot load rules, using previous cache")
	} else {
		t.cache.Reconcile(rules)
	}
	snapshot := t.cache.Snapshot()

	feeds, err := t.feeds.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot load feeds")
		return
	}

	for _, feed := range feeds {
		if feed.URL != "" {
			t.pollSiteFeed(ctx, feed, snapshot)
		}
		if feed.SearchURL != "" {
			t.pollSearchFeed(ctx, feed, snapshot)
		}
	}
}

// pollSiteFeed publishes every tagged item of a whole-site channel.
func (t *Tasker) pollSiteFeed(ctx context.Context, feed *models.Feed, snapshot []*CompiledRule) {
	items, err := t.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		log.Warn().Err(err).Str("feed", feed.Title).Msg("feed fetch failed")
		return
	}
	for _, item := range items {
		rssItem, ok := tagFeedItem(snapshot, item)
		if !ok {
			continue
		}
		t.publishBroadcast(rssItem)
	}
}

// pollSearchFeed queries the per-series search template for each live,
// search-enabled listener and delivers hits on the targeted inbox.
func (t *Tasker) pollSearchFeed(ctx context.Context, feed *models.Feed, snapshot []*CompiledRule) {
	for _, id := range t.listenerIDs() {
		status, err := t.statuses.Get(ctx, id)
		if err != nil || !status.IsSearch {
			continue
		}
		for _, alias := range status.AnimeInfo.Names() {
			searchURL, err := formatSearchURL(feed.SearchURL, alias)
			if err != nil {
				log.Warn().Err(err).Str("feed", feed.Title).Msg("bad search template")
				break
			}
			items, err := t.fetcher.Fetch(ctx, searchURL)
			if err != nil {
				log.Warn().Err(err).Str("feed", feed.Title).Str("alias", alias).Msg("search fetch failed")
				continue
			}
			for _, item := range items {
				rssItem, ok := tagFeedItem(snapshot, item)
				if !ok {
					continue
				}
				t.sendTargeted(id, rssItem)
			}
		}
	}
}

// tagFeedItem gates a raw feed entry and stamps the first matching
// rule. Items with no title, no pub-date or no matching rule drop.
func tagFeedItem(snapshot []*CompiledRule, item rssfetch.Item) (RssItem, bool) {
	if item.Title == "" || item.URL == "" || item.PubDate == "" {
		return RssItem{}, false
	}
	rule := tagItem(snapshot, item.Title)
	if rule == "" {
		return RssItem{}, false
	}
	return RssItem{
		Title:    item.Title,
		Magnet:   item.URL,
		PubDate:  item.PubDate,
		RuleName: rule,
	}, true
}

// formatSearchURL substitutes the series alias into the feed's search
// template.
func formatSearchURL(template, alias string) (string, error) {
	if !strings.Contains(template, "{}") {
		return "", errors.Errorf("search template has no {} placeholder: %s", template)
	}
	return strings.Replace(template, "{}", url.QueryEscape(alias), 1), nil
}
