package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// CreateSession creates a session owned by userID. An empty name becomes
// models.DefaultSessionName.
func (d *DB) CreateSession(ctx context.Context, userID int64, repoURL, name string) (*models.Session, error) {
	if repoURL == "" {
		return nil, errors.New("repo_url is required")
	}
	if name == "" {
		name = models.DefaultSessionName
	}
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (user_id, name, repo_url, created_at) VALUES (?, ?, ?, ?)",
		userID, name, repoURL, d.timestamp())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return d.GetSession(ctx, userID, id)
}

const sessionQuery = `
	SELECT s.id, s.name, s.repo_url, s.created_at,
		(SELECT m.content FROM chat_messages m WHERE m.session_id = s.id ORDER BY m.id DESC LIMIT 1)
	FROM chat_sessions s`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	var created string
	var last sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.RepoURL, &created, &last); err != nil {
		return nil, err
	}
	s.CreatedAt = parseTimestamp(created)
	if last.Valid {
		p := models.Preview(last.String)
		s.LastMessage = &p
	}
	return &s, nil
}

// GetSession returns ErrNotFound when the session does not exist or belongs
// to another user.
func (d *DB) GetSession(ctx context.Context, userID, id int64) (*models.Session, error) {
	s, err := scanSession(d.db.QueryRowContext(ctx, sessionQuery+" WHERE s.id = ? AND s.user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return s, nil
}

// ListSessions returns the user's sessions, newest first.
func (d *DB) ListSessions(ctx context.Context, userID int64) ([]*models.Session, error) {
	rows, err := d.db.QueryContext(ctx, sessionQuery+" WHERE s.user_id = ? ORDER BY s.created_at DESC, s.id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession deletes the session and its messages.
func (d *DB) DeleteSession(ctx context.Context, userID, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message to a session.
func (d *DB) AddMessage(ctx context.Context, sessionID int64, msg models.Message) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		sessionID, string(msg.Role), msg.Content, d.timestamp())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Messages returns a session's messages in insertion order.
func (d *DB) Messages(ctx context.Context, sessionID int64) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT role, content FROM chat_messages WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, models.Message{Role: models.Role(role), Content: content})
	}
	return msgs, rows.Err()
}
