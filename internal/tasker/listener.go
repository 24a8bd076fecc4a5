// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// pubDateLayouts covers the RFC 2822 shapes seen in torrent feeds,
// including the date-only form some sites emit.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006",
}

// airDateSlack admits items published up to eight days before the
// season air date, which covers pre-release episode 1.
const airDateSlack = 8 * 24 * time.Hour

// listener is the per-series worker. It owns a private copy of the
// series status and processes its subscriptions strictly sequentially.
type listener struct {
	status   models.AnimeStatus
	sub      *subscription
	statuses *models.AnimeStatusStore
	admitter *Admitter
}

// run consumes both buses until the series retires or ctx ends.
func (l *listener) run(ctx context.Context) {
	id := l.status.AnimeInfo.ID
	log.Debug().Int64("anime", id).Str("name", l.status.AnimeInfo.Name).Msg("listener started")

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.sub.retire:
			if task.Cancel && task.Info.ID == id {
				log.Debug().Int64("anime", id).Msg("listener retired")
				return
			}
		case item := <-l.sub.inbox:
			l.evaluate(ctx, item)
		case item := <-l.sub.bcast:
			l.evaluate(ctx, item)
		}
	}
}

// evaluate applies the admission gates in order: operator-edit refresh,
// alias containment, air-date slack, sticky rule, then the admitter.
func (l *listener) evaluate(ctx context.Context, item RssItem) {
	if fresh, err := l.statuses.Get(ctx, l.status.AnimeInfo.ID); err == nil {
		l.status.AnimeInfo = fresh.AnimeInfo
	}

	if !titleMatchesAlias(item.Title, l.status.AnimeInfo.Names()) {
		return
	}
	if !passesDateGate(item.PubDate, l.status.AnimeInfo.AirDate) {
		log.Debug().Int64("anime", l.status.AnimeInfo.ID).Str("title", item.Title).Msg("item predates season, dropped")
		return
	}

	// the first rule that matches a series stays its rule for good
	if l.status.RuleName == "" {
		l.status.RuleName = item.RuleName
		if err := l.statuses.Save(ctx, &l.status); err != nil {
			log.Error().Err(err).Int64("anime", l.status.AnimeInfo.ID).Msg("cannot persist sticky rule")
			l.status.RuleName = ""
			return
		}
	} else if l.status.RuleName != item.RuleName {
		return
	}

	l.admitter.Admit(ctx, &l.status, item)
}

func titleMatchesAlias(title string, aliases []string) bool {
	for _, alias := range aliases {
		if alias != "" && strings.Contains(title, alias) {
			return true
		}
	}
	return false
}

// passesDateGate drops items published more than eight days before the
// season started. Unparseable dates skip the gate rather than drop.
func passesDateGate(pubDate, airDate string) bool {
	pub, err := parsePubDate(pubDate)
	if err != nil {
		return true
	}
	air, err := time.Parse("2006-01-02", airDate)
	if err != nil {
		return true
	}
	return !pub.Add(airDateSlack).Before(air)
}

func parsePubDate(s string) (time.Time, error) {
	var err error
	for _, layout := range pubDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
