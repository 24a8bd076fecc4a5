// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/yanami/internal/dbinterface"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// User is an operator account for the REST API.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore persists operator accounts.
type UserStore struct {
	db dbinterface.Querier
}

func NewUserStore(db dbinterface.Querier) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a user. The password must already be hashed.
func (s *UserStore) Create(ctx context.Context, username, passwordHash, role string) (*User, error) {
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}
	if role == "" {
		role = "admin"
	}

	query := `INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, role)
	if err != nil {
		// unique constraint on username
		existing, getErr := s.GetByUsername(ctx, username)
		if getErr == nil && existing != nil {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a user by id.
func (s *UserStore) Get(ctx context.Context, id int64) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?
	`, id))
}

// GetByUsername retrieves a user by name.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?
	`, username))
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Count returns the number of accounts; zero means first-run bootstrap.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
