// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// Admitter turns an accepted RSS item into a dispatched torrent plus a
// persisted record, and recomputes series progress afterwards.
type Admitter struct {
	statuses *models.AnimeStatusStore
	records  *models.AnimeRecordStore
	settings *models.SettingsStore
	hasher   InfoHasher
	torrents TorrentDownloader
	retire   func(AnimeTask)
}

// Admit processes one item that already passed the listener's gates.
// status is the listener's live copy; retirement and progress updates
// mutate it in place before persisting.
func (a *Admitter) Admit(ctx context.Context, status *models.AnimeStatus, item RssItem) {
	logger := log.With().
		Int64("anime", status.AnimeInfo.ID).
		Str("title", item.Title).
		Logger()

	hash, err := a.hasher.Derive(ctx, item.Magnet)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot derive info-hash, dropping item")
		return
	}

	_, err = a.records.Get(ctx, status.AnimeInfo.ID, hash)
	isNew := errors.Is(err, models.ErrRecordNotFound)
	if err != nil && !isNew {
		logger.Error().Err(err).Msg("record lookup failed")
		return
	}

	if isNew {
		if err := a.dispatch(ctx, status, item, hash); err != nil {
			logger.Error().Err(err).Str("hash", hash).Msg("dispatch failed, no record written")
			return
		}
		rec := &models.AnimeRecord{
			AnimeID:  status.AnimeInfo.ID,
			Title:    item.Title,
			Magnet:   item.Magnet,
			RuleName: item.RuleName,
			InfoHash: hash,
		}
		if err := a.records.Insert(ctx, rec); err != nil {
			logger.Error().Err(err).Msg("record write failed")
			return
		}
		logger.Info().Str("hash", hash).Str("rule", item.RuleName).Msg("torrent admitted")
	}

	a.updateProgress(ctx, status)
}

// dispatch loads the persisted client settings and hands the magnet to
// the torrent client. Missing settings fail the admit so the item can
// retry on its next appearance.
func (a *Admitter) dispatch(ctx context.Context, status *models.AnimeStatus, item RssItem, hash string) error {
	downloadPath, err := a.settings.GetDownloadPath(ctx)
	if err != nil {
		return errors.Wrap(err, "download path not configured")
	}
	qbitCfg, err := a.settings.GetQbitConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "torrent client not configured")
	}

	savePath := filepath.Join(downloadPath, status.AnimeInfo.SearchName,
		fmt.Sprintf("S%02d", status.AnimeInfo.Season))
	return a.torrents.Download(ctx, *qbitCfg, item.Magnet, savePath, hash)
}

// updateProgress recounts the distinct episodes across all records and
// either bumps the persisted progress or retires the series.
func (a *Admitter) updateProgress(ctx context.Context, status *models.AnimeStatus) {
	recs, err := a.records.ListByAnime(ctx, status.AnimeInfo.ID)
	if err != nil {
		log.Error().Err(err).Int64("anime", status.AnimeInfo.ID).Msg("cannot list records for progress")
		return
	}
	titles := make([]string, 0, len(recs))
	for _, rec := range recs {
		titles = append(titles, rec.Title)
	}
	progress := len(EpisodeNumbers(titles))

	switch {
	case status.AnimeInfo.Eps > 0 && progress >= status.AnimeInfo.Eps:
		status.Status = models.WatchStatusRetired
		status.Progress = progress
		if err := a.statuses.Save(ctx, status); err != nil {
			log.Error().Err(err).Int64("anime", status.AnimeInfo.ID).Msg("cannot persist retirement")
			return
		}
		log.Info().Int64("anime", status.AnimeInfo.ID).Int("progress", progress).Msg("series complete, retiring")
		a.retire(AnimeTask{Info: status.AnimeInfo, Cancel: true})
	case progress > status.Progress:
		status.Progress = progress
		if err := a.statuses.Save(ctx, status); err != nil {
			log.Error().Err(err).Int64("anime", status.AnimeInfo.ID).Msg("cannot persist progress")
		}
	}
}
