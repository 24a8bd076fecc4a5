// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent owns the process-wide torrent client session.
package qbittorrent

import (
	"context"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

const (
	verifyAttempts = 5
	verifyDelay    = 5 * time.Second
)

// Dispatcher wraps a single qBittorrent session. The session is
// stateful and dispatch is rare, so config reload, login check, add and
// post-add verification all happen under one lock.
type Dispatcher struct {
	mu     sync.Mutex
	cfg    models.QbitConfig
	client *qbt.Client

	// test seams
	newClient   func(cfg models.QbitConfig) *qbt.Client
	verifyDelay time.Duration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		newClient: func(cfg models.QbitConfig) *qbt.Client {
			return qbt.NewClient(qbt.Config{
				Host:     cfg.URL,
				Username: cfg.Username,
				Password: cfg.Password,
				Timeout:  30,
			})
		},
		verifyDelay: verifyDelay,
	}
}

// Download reconfigures the session if cfg changed, verifies login,
// submits the magnet with the given save path, and confirms the hash
// shows up in the client's torrent list within the verification window.
func (d *Dispatcher) Download(ctx context.Context, cfg models.QbitConfig, magnet, savePath, infoHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reconfigure(ctx, cfg); err != nil {
		return err
	}
	if err := d.checkAndLogin(ctx); err != nil {
		return err
	}

	opts := map[string]string{
		"savepath": savePath,
		"autoTMM":  "false",
	}
	if err := d.client.AddTorrentFromUrlCtx(ctx, magnet, opts); err != nil {
		return errors.Wrap(err, "add torrent")
	}

	err := retry.Do(
		func() error {
			torrents, err := d.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{infoHash}})
			if err != nil {
				return err
			}
			if len(torrents) == 0 {
				return errors.Errorf("torrent %s not in client state yet", infoHash)
			}
			return nil
		},
		retry.Attempts(verifyAttempts),
		retry.Delay(d.verifyDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Wrapf(err, "verify torrent %s", infoHash)
	}
	return nil
}

// reconfigure swaps the session when the persisted endpoint changed.
func (d *Dispatcher) reconfigure(ctx context.Context, cfg models.QbitConfig) error {
	if cfg.URL == "" || cfg.Username == "" || cfg.Password == "" {
		return errors.New("torrent client config incomplete")
	}
	if d.client != nil && d.cfg == cfg {
		return nil
	}

	client := d.newClient(cfg)
	if err := client.LoginCtx(ctx); err != nil {
		return errors.Wrap(err, "login after reconfigure")
	}
	d.cfg = cfg
	d.client = client
	log.Info().Str("url", cfg.URL).Msg("torrent client reconfigured")
	return nil
}

// checkAndLogin verifies the session is alive, re-authenticating when
// the cookie has expired.
func (d *Dispatcher) checkAndLogin(ctx context.Context) error {
	if _, err := d.client.GetWebAPIVersionCtx(ctx); err != nil {
		if err := d.client.LoginCtx(ctx); err != nil {
			return errors.Wrap(err, "re-login")
		}
	}
	return nil
}
