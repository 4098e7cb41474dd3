package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

const ingestionColumns = "id, repo_url, COALESCE(user_id, 0), repo_index, content_hash, local_path, token_count, created_at, updated_at"

func scanIngestion(row interface{ Scan(...any) error }) (*models.RepoIngestion, error) {
	var ing models.RepoIngestion
	var created, updated string
	if err := row.Scan(&ing.ID, &ing.RepoURL, &ing.UserID, &ing.RepoIndex, &ing.ContentHash,
		&ing.LocalPath, &ing.TokenCount, &created, &updated); err != nil {
		return nil, err
	}
	ing.CreatedAt = parseTimestamp(created)
	ing.UpdatedAt = parseTimestamp(updated)
	return &ing, nil
}

// UpsertIngestion inserts or replaces the ingestion for ing.RepoURL. A zero
// UserID keeps the previous owner.
func (d *DB) UpsertIngestion(ctx context.Context, ing *models.RepoIngestion) (*models.RepoIngestion, error) {
	now := d.timestamp()
	var userID any
	if ing.UserID != 0 {
		userID = ing.UserID
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO repo_ingestions (repo_url, user_id, repo_index, content_hash, local_path, token_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_url) DO UPDATE SET
			user_id = COALESCE(excluded.user_id, repo_ingestions.user_id),
			repo_index = excluded.repo_index,
			content_hash = excluded.content_hash,
			local_path = excluded.local_path,
			token_count = excluded.token_count,
			updated_at = excluded.updated_at`,
		ing.RepoURL, userID, ing.RepoIndex, ing.ContentHash, ing.LocalPath, ing.TokenCount, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert ingestion: %w", err)
	}
	return d.IngestionByRepo(ctx, ing.RepoURL)
}

// IngestionByRepo returns ErrNotFound if the repository was never ingested.
func (d *DB) IngestionByRepo(ctx context.Context, repoURL string) (*models.RepoIngestion, error) {
	ing, err := scanIngestion(d.db.QueryRowContext(ctx,
		"SELECT "+ingestionColumns+" FROM repo_ingestions WHERE repo_url = ?", repoURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ingestion: %w", err)
	}
	return ing, nil
}

// LatestIngestion returns the user's most recently updated ingestion.
func (d *DB) LatestIngestion(ctx context.Context, userID int64) (*models.RepoIngestion, error) {
	ing, err := scanIngestion(d.db.QueryRowContext(ctx,
		"SELECT "+ingestionColumns+" FROM repo_ingestions WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest ingestion: %w", err)
	}
	return ing, nil
}

// ContentHashes returns every content hash referenced by an ingestion.
func (d *DB) ContentHashes(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT content_hash FROM repo_ingestions WHERE content_hash != ''")
	if err != nil {
		return nil, fmt.Errorf("list content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// LocalPaths returns every clone directory referenced by an ingestion.
func (d *DB) LocalPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT local_path FROM repo_ingestions WHERE local_path != ''")
	if err != nil {
		return nil, fmt.Errorf("list local paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = true
	}
	return paths, rows.Err()
}
