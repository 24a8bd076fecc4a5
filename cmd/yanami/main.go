// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "yanami",
		Short: "Auto-download engine for currently-airing anime",
		Long: `yanami tracks the broadcast calendar, polls torrent RSS feeds,
matches new items against per-series rules and hands them to qBittorrent.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunCreateUserCommand())
	rootCmd.AddCommand(RunVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// addConfigFlags registers the shared configuration flags.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to TOML config file")
	cmd.Flags().String("addr", "", "HTTP listen address (default :7856)")
	cmd.Flags().String("mode", "", "Log mode: debug, warn or info")
	cmd.Flags().String("key", "", "JWT signing secret")
	cmd.Flags().String("db-path", "", "Path to the SQLite database (default yanami.db)")
	cmd.Flags().String("tmdb-token", "", "TMDB API read access token")
	cmd.Flags().String("log-path", "", "Log file path (stderr only when empty)")
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
