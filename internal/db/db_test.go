package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "ragchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func newUser(t *testing.T, d *DB, email string) *models.User {
	t.Helper()
	u, err := d.CreateUser(context.Background(), email, "Test", "hash-"+email)
	require.NoError(t, err)
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	u := newUser(t, d, "a@example.com")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "a@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := d.UserByTokenHash(ctx, "hash-a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	require.NoError(t, d.TouchUser(ctx, u.ID))

	_, err = d.UserByTokenHash(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.CreateUser(ctx, "a@example.com", "Dup", "other-hash")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	newUser(t, d, "b@example.com")
	users, err := d.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, d.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, d.DeleteUser(ctx, u.ID), ErrNotFound)
	_, err = d.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessions_CreateDefaultsName(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newUser(t, d, "a@example.com")

	s, err := d.CreateSession(ctx, u.ID, "https://github.com/o/r", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionName, s.Name)
	assert.Equal(t, "https://github.com/o/r", s.RepoURL)
	assert.Nil(t, s.LastMessage)

	_, err = d.CreateSession(ctx, u.ID, "", "x")
	assert.Error(t, err)
}

func TestSessions_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newUser(t, d, "a@example.com")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Second)
		d.now = func() time.Time { return at }
		_, err := d.CreateSession(ctx, u.ID, "https://github.com/o/r", name)
		require.NoError(t, err)
	}

	sessions, err := d.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "third", sessions[0].Name)
	assert.Equal(t, "first", sessions[2].Name)
	assert.Equal(t, base, sessions[2].CreatedAt)
}

func TestSessions_IsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	alice := newUser(t, d, "alice@example.com")
	bob := newUser(t, d, "bob@example.com")

	s, err := d.CreateSession(ctx, alice.ID, "https://github.com/o/r", "mine")
	require.NoError(t, err)

	_, err = d.GetSession(ctx, bob.ID, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.DeleteSession(ctx, bob.ID, s.ID), ErrNotFound)

	list, err := d.ListSessions(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMessages_OrderAndPreview(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newUser(t, d, "a@example.com")
	s, err := d.CreateSession(ctx, u.ID, "https://github.com/o/r", "")
	require.NoError(t, err)

	long := strings.Repeat("x", 80)
	require.NoError(t, d.AddMessage(ctx, s.ID, models.Message{Role: models.RoleUser, Content: "hello"}))
	require.NoError(t, d.AddMessage(ctx, s.ID, models.Message{Role: models.RoleModel, Content: long}))

	msgs, err := d.Messages(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleModel, Content: long},
	}, msgs)

	got, err := d.GetSession(ctx, u.ID, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, strings.Repeat("x", 50)+"...", *got.LastMessage)
}

func TestDeleteSession_CascadesMessages(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newUser(t, d, "a@example.com")
	s, _ := d.CreateSession(ctx, u.ID, "https://github.com/o/r", "")
	require.NoError(t, d.AddMessage(ctx, s.ID, models.Message{Role: models.RoleUser, Content: "hi"}))

	require.NoError(t, d.DeleteSession(ctx, u.ID, s.ID))
	msgs, err := d.Messages(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestIngestions(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	u := newUser(t, d, "a@example.com")

	_, err := d.IngestionByRepo(ctx, "https://github.com/o/r")
	assert.ErrorIs(t, err, ErrNotFound)

	d.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ing, err := d.UpsertIngestion(ctx, &models.RepoIngestion{
		RepoURL: "https://github.com/o/r", UserID: u.ID, RepoIndex: "a.go\nb.go",
		ContentHash: "h1", LocalPath: "/data/repos/r_1", TokenCount: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, ing.TokenCount)

	d.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	_, err = d.UpsertIngestion(ctx, &models.RepoIngestion{RepoURL: "https://github.com/o/other", UserID: u.ID, ContentHash: "h2"})
	require.NoError(t, err)

	// Re-ingesting without a user keeps the owner and replaces content.
	d.now = func() time.Time { return time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC) }
	ing, err = d.UpsertIngestion(ctx, &models.RepoIngestion{RepoURL: "https://github.com/o/r", ContentHash: "h3"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, ing.UserID)
	assert.Equal(t, "h3", ing.ContentHash)

	latest, err := d.LatestIngestion(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/o/r", latest.RepoURL)

	hashes, err := d.ContentHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"h2": true, "h3": true}, hashes)
}

func TestIngestions_LocalPathsFollowReingest(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.UpsertIngestion(ctx, &models.RepoIngestion{RepoURL: "https://github.com/o/r", ContentHash: "h1", LocalPath: "/data/repos/r_1"})
	require.NoError(t, err)
	_, err = d.UpsertIngestion(ctx, &models.RepoIngestion{RepoURL: "https://github.com/o/s", ContentHash: "h2", LocalPath: "/data/repos/s_1"})
	require.NoError(t, err)
	_, err = d.UpsertIngestion(ctx, &models.RepoIngestion{RepoURL: "https://github.com/o/r", ContentHash: "h3", LocalPath: "/data/repos/r_2"})
	require.NoError(t, err)

	paths, err := d.LocalPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"/data/repos/r_2": true, "/data/repos/s_1": true}, paths)
}
