// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autobrr/yanami/internal/auth"
	"github.com/autobrr/yanami/internal/config"
	"github.com/autobrr/yanami/internal/database"
	"github.com/autobrr/yanami/internal/models"
)

func RunCreateUserCommand() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an operator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			if len(password) < 8 {
				return errors.New("--password must be at least 8 characters")
			}

			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			db, err := database.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			users := models.NewUserStore(db)
			if _, err := users.GetByUsername(cmd.Context(), username); err == nil {
				cmd.Printf("User '%s' already exists, nothing to do.\n", username)
				return nil
			} else if !errors.Is(err, models.ErrUserNotFound) {
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			if _, err := users.Create(cmd.Context(), username, hash, "admin"); err != nil {
				return err
			}

			cmd.Printf("User '%s' created successfully.\n", username)
			return nil
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().StringVar(&username, "username", "", "Username for the new account")
	cmd.Flags().StringVar(&password, "password", "", "Password for the new account")

	return cmd
}
