// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/yanami/internal/api"
	"github.com/autobrr/yanami/internal/auth"
	"github.com/autobrr/yanami/internal/config"
	"github.com/autobrr/yanami/internal/database"
	"github.com/autobrr/yanami/internal/domain"
	"github.com/autobrr/yanami/internal/metadata"
	"github.com/autobrr/yanami/internal/models"
	"github.com/autobrr/yanami/internal/qbittorrent"
	"github.com/autobrr/yanami/internal/rssfetch"
	"github.com/autobrr/yanami/internal/tasker"
)

func RunServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Version = version

			setupLogging(cfg)

			if err := cfg.Validate(); err != nil {
				return err
			}

			return serve(cmd, cfg)
		},
	}

	addConfigFlags(cmd)
	return cmd
}

func serve(cmd *cobra.Command, cfg *domain.Config) error {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses := models.NewAnimeStatusStore(db)
	records := models.NewAnimeRecordStore(db)
	rules := models.NewRuleStore(db)
	feeds := models.NewFeedStore(db)
	settings := models.NewSettingsStore(db)
	users := models.NewUserStore(db)

	tracker := metadata.NewTracker(
		metadata.NewTMDBClient(cfg.TMDBToken, ""),
		metadata.NewBangumiClient(""),
	)
	engine := tasker.New(tasker.Config{},
		statuses, records, rules, feeds, settings,
		tracker, rssfetch.NewFetcher(), qbittorrent.NewDispatcher(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)

	server := api.NewServer(&api.Dependencies{
		Config:   cfg,
		Tokens:   auth.NewTokenService(cfg.Key),
		Statuses: statuses,
		Records:  records,
		Rules:    rules,
		Feeds:    feeds,
		Settings: settings,
		Users:    users,
		Engine:   engine,
	})
	return server.ListenAndServe(ctx)
}

// setupLogging configures the global zerolog logger from the config:
// level from mode, console on stderr, optionally teeing into a rotated
// file.
func setupLogging(cfg *domain.Config) {
	var level zerolog.Level
	switch cfg.LogMode() {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	if cfg.LogPath != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
