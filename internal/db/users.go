package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// ErrDuplicateEmail is returned when creating a user whose email exists.
var ErrDuplicateEmail = errors.New("email already registered")

const userColumns = "id, email, name, picture, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var created string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(created)
	return &u, nil
}

// CreateUser inserts a user authenticated by the given token hash.
func (d *DB) CreateUser(ctx context.Context, email, name, tokenHash string) (*models.User, error) {
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO users (email, name, token_hash, created_at) VALUES (?, ?, ?, ?)",
		email, name, tokenHash, d.timestamp())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return d.GetUser(ctx, id)
}

// GetUser returns ErrNotFound for unknown ids.
func (d *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// UserByTokenHash resolves a hashed session or bearer token.
func (d *DB) UserByTokenHash(ctx context.Context, hash string) (*models.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE token_hash = ?", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by token: %w", err)
	}
	return u, nil
}

// TouchUser records that the user was seen.
func (d *DB) TouchUser(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, "UPDATE users SET last_seen_at = ? WHERE id = ?", d.timestamp(), id)
	return err
}

// ListUsers returns all users by id.
func (d *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user and, by cascade, their sessions and messages.
func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
