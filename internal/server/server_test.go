package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
	"github.com/ubaidzafar05/Rag-github/internal/db"
	"github.com/ubaidzafar05/Rag-github/internal/editor"
	"github.com/ubaidzafar05/Rag-github/internal/ingest"
	"github.com/ubaidzafar05/Rag-github/internal/jobstore"
	"github.com/ubaidzafar05/Rag-github/internal/llm"
	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/retrieval"
)

const testAdminToken = "admin-secret"

type fakeRunner struct {
	mu   sync.Mutex
	reqs []ingest.Request
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req ingest.Request, _ func(string)) (*ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{Size: 42}, nil
}

type fakeQueue struct {
	jobs *jobstore.BboltStore
	err  error
	n    int
}

func (f *fakeQueue) Submit(ctx context.Context, req ingest.Request) (*models.IngestJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	job := &models.IngestJob{ID: "job-" + string(rune('0'+f.n)), RepoURL: req.RepoURL, UserID: req.UserID}
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

type fakeRetriever struct {
	chunks  []retrieval.Chunk
	err     error
	dropped []string
}

func (f *fakeRetriever) Search(context.Context, *models.RepoIngestion, string, int) ([]retrieval.Chunk, error) {
	return f.chunks, f.err
}

func (f *fakeRetriever) Drop(_ context.Context, ing *models.RepoIngestion) error {
	f.dropped = append(f.dropped, ing.RepoURL)
	return nil
}

type fakeLLM struct {
	reqs  []llm.Request
	reply string
	err   error
}

func (f *fakeLLM) Run(_ context.Context, req llm.Request) (*llm.Reply, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Reply{Content: f.reply, Intent: llm.IntentQuery}, nil
}

type fakeValidator struct {
	results []editor.Result
	calls   [][]string
}

func (f *fakeValidator) Validate(_ context.Context, _ string, commands []string) []editor.Result {
	f.calls = append(f.calls, commands)
	return f.results
}

type testEnv struct {
	t         *testing.T
	store     *db.DB
	jobs      *jobstore.BboltStore
	blobs     *blobstore.FSStore
	runner    *fakeRunner
	queue     *fakeQueue
	retriever *fakeRetriever
	llm       *fakeLLM
	validator *fakeValidator
	srv       *httptest.Server
}

func newTestEnv(t *testing.T, withLLM bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := db.Open(filepath.Join(dir, "ragchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jobs, err := jobstore.Open(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jobs.Close() })

	blobs, err := blobstore.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	env := &testEnv{
		t:         t,
		store:     store,
		jobs:      jobs,
		blobs:     blobs,
		runner:    &fakeRunner{},
		queue:     &fakeQueue{jobs: jobs},
		retriever: &fakeRetriever{},
		llm:       &fakeLLM{reply: "answer"},
		validator: &fakeValidator{},
	}
	deps := &Deps{
		Store:     store,
		Jobs:      jobs,
		Blobs:     blobs,
		Pipeline:  env.runner,
		Queue:     env.queue,
		Retriever: env.retriever,
		Validator: env.validator,
		Janitor:   NewJanitor(store, blobs, jobs, 0, slog.Default()),
	}
	if withLLM {
		deps.LLM = env.llm
	}

	cfg := DefaultConfig()
	cfg.AdminToken = testAdminToken
	handler, cleanup := Handler(deps, cfg, slog.Default())
	t.Cleanup(cleanup)

	env.srv = httptest.NewServer(handler)
	t.Cleanup(env.srv.Close)
	return env
}

// createUser returns a user and its raw token.
func (e *testEnv) createUser(email string) (*models.User, string) {
	e.t.Helper()
	token, err := GenerateToken()
	require.NoError(e.t, err)
	u, err := e.store.CreateUser(context.Background(), email, "Test", HashToken(token))
	require.NoError(e.t, err)
	return u, token
}

// ingested records an ingestion whose clone lives in a temp directory.
func (e *testEnv) ingested(repoURL string, userID int64, files map[string]string) *models.RepoIngestion {
	e.t.Helper()
	root := e.t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(e.t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(e.t, os.WriteFile(p, []byte(content), 0o644))
	}
	hash, err := blobstore.PutBytes(context.Background(), e.blobs, []byte("<file path=\"main.py\">\nprint(1)\n</file>"))
	require.NoError(e.t, err)
	ing, err := e.store.UpsertIngestion(context.Background(), &models.RepoIngestion{
		RepoURL:     repoURL,
		UserID:      userID,
		ContentHash: hash,
		LocalPath:   root,
	})
	require.NoError(e.t, err)
	return ing
}

func (e *testEnv) do(method, path, token string, body interface{}) *http.Response {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_SetsCookie(t *testing.T) {
	env := newTestEnv(t, true)
	user, token := env.createUser("a@example.com")

	resp := env.do(http.MethodPost, "/login", "", &api.LoginRequest{Token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == api.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, token, cookie.Value)

	got := decode[models.User](t, resp)
	assert.Equal(t, user.ID, got.ID)

	// The cookie alone authenticates.
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/user/me", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestLogin_InvalidToken(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/login", "", &api.LoginRequest{Token: "rc_nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(http.MethodPost, "/login", "", &api.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/logout", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, api.SessionCookie, resp.Cookies()[0].Name)
	assert.True(t, resp.Cookies()[0].MaxAge < 0)
}

func TestMe_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodGet, "/user/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errResp := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "auth_failed", errResp.Error)

	resp = env.do(http.MethodGet, "/user/me", "rc_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessions_CRUD(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")

	resp := env.do(http.MethodPost, "/sessions", token, &api.CreateSessionRequest{RepoURL: "https://github.com/o/r"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	s := decode[models.Session](t, resp)
	assert.Equal(t, models.DefaultSessionName, s.Name)
	assert.Equal(t, "https://github.com/o/r", s.RepoURL)

	resp = env.do(http.MethodGet, "/sessions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]models.Session](t, resp)
	require.Len(t, list, 1)

	path := "/sessions/" + itoa(s.ID)
	resp = env.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, path+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Message](t, resp))

	resp = env.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_RequireRepoURL(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")

	resp := env.do(http.MethodPost, "/sessions", token, &api.CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_OtherUsersHidden(t *testing.T) {
	env := newTestEnv(t, true)
	_, alice := env.createUser("alice@example.com")
	_, bob := env.createUser("bob@example.com")

	resp := env.do(http.MethodPost, "/sessions", alice, &api.CreateSessionRequest{RepoURL: "https://github.com/o/r"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	s := decode[models.Session](t, resp)

	resp = env.do(http.MethodGet, "/sessions/"+itoa(s.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(http.MethodDelete, "/sessions/"+itoa(s.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChat_NoIngestion(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/chat", "", &api.ChatRequest{Message: "hi", RepoURL: "https://github.com/o/none"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ChatResponse](t, resp)
	assert.Equal(t, NoIngestionReply, got.Response)
	assert.NotNil(t, got.Citations)
	assert.Empty(t, got.Citations)
	assert.Empty(t, env.llm.reqs)
}

func TestChat_UsesRetrievedChunks(t *testing.T) {
	env := newTestEnv(t, true)
	env.ingested("https://github.com/o/r", 0, nil)
	env.retriever.chunks = []retrieval.Chunk{{Path: "a.go", StartLine: 1, EndLine: 3, Text: "package a"}}

	resp := env.do(http.MethodPost, "/chat", "", &api.ChatRequest{
		Message: "what is a?",
		RepoURL: "https://github.com/o/r",
		History: []models.Message{{Role: models.RoleUser, Content: "earlier"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ChatResponse](t, resp)
	assert.Equal(t, "answer", got.Response)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "a.go", got.Citations[0].Path)

	require.Len(t, env.llm.reqs, 1)
	assert.Contains(t, env.llm.reqs[0].Context, `<FILE path="a.go" lines="1-3">`)
	assert.Len(t, env.llm.reqs[0].History, 1)
}

func TestChat_FallsBackToPackedContent(t *testing.T) {
	env := newTestEnv(t, true)
	env.ingested("https://github.com/o/r", 0, nil)
	env.retriever.err = errors.New("index unavailable")

	resp := env.do(http.MethodPost, "/chat", "", &api.ChatRequest{Message: "hi", RepoURL: "https://github.com/o/r"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ChatResponse](t, resp)
	assert.Empty(t, got.Citations)

	require.Len(t, env.llm.reqs, 1)
	assert.Contains(t, env.llm.reqs[0].Context, "print(1)")
}

func TestChat_SessionPersistsMessages(t *testing.T) {
	env := newTestEnv(t, true)
	user, token := env.createUser("a@example.com")
	env.ingested("https://github.com/o/r", user.ID, nil)
	s, err := env.store.CreateSession(context.Background(), user.ID, "https://github.com/o/r", "")
	require.NoError(t, err)

	resp := env.do(http.MethodPost, "/chat?session_id="+itoa(s.ID), token, &api.ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ChatResponse](t, resp)
	assert.Equal(t, s.ID, got.SessionID)

	msgs, err := env.store.Messages(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleModel, Content: "answer"},
	}, msgs)
}

func TestChat_SessionRequiresAuth(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/chat?session_id=1", "", &api.ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChat_LLMUnavailable(t *testing.T) {
	env := newTestEnv(t, false)
	env.ingested("https://github.com/o/r", 0, nil)

	resp := env.do(http.MethodPost, "/chat", "", &api.ChatRequest{Message: "hi", RepoURL: "https://github.com/o/r"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "llm_unavailable", decode[api.ErrorResponse](t, resp).Error)
}

func TestIngest_Sync(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/ingest", "", &api.IngestRequest{RepoURL: " https://github.com/o/r "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.IngestResult](t, resp)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, 42, got.Size)
	require.Len(t, env.runner.reqs, 1)
	assert.Equal(t, "https://github.com/o/r", env.runner.reqs[0].RepoURL)

	resp = env.do(http.MethodPost, "/ingest", "", &api.IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngest_AsyncAndStatus(t *testing.T) {
	env := newTestEnv(t, true)
	user, token := env.createUser("a@example.com")

	resp := env.do(http.MethodPost, "/ingest/async", token, &api.IngestRequest{RepoURL: "https://github.com/o/r"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	st := decode[api.IngestStatus](t, resp)
	assert.Equal(t, models.JobQueued, st.Status)
	assert.NotEmpty(t, st.JobID)

	job, err := env.jobs.GetJob(context.Background(), st.JobID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, job.UserID)

	require.NoError(t, env.jobs.Fail(context.Background(), st.JobID, "clone failed"))
	resp = env.do(http.MethodGet, "/ingest/status/"+st.JobID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[api.IngestStatus](t, resp)
	assert.Equal(t, models.JobFailed, st.Status)
	assert.Equal(t, "clone failed", st.Message)
}

func TestIngest_StatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodGet, "/ingest/status/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngest_QueueFull(t *testing.T) {
	env := newTestEnv(t, true)
	env.queue.err = ingest.ErrQueueFull

	resp := env.do(http.MethodPost, "/ingest/async", "", &api.IngestRequest{RepoURL: "https://github.com/o/r"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", decode[api.ErrorResponse](t, resp).Error)
}

func TestApply_WritesFileAndDropsIndex(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", 0, map[string]string{"a.py": "old\n"})

	resp := env.do(http.MethodPost, "/apply", token, &api.ApplyRequest{
		RepoURL:  ing.RepoURL,
		FilePath: "a.py",
		Content:  "new\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ApplyResponse](t, resp)
	assert.Equal(t, "Applied fix to a.py", got.Message)

	data, err := os.ReadFile(filepath.Join(ing.LocalPath, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
	assert.Equal(t, []string{ing.RepoURL}, env.retriever.dropped)
}

func TestApply_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/apply", "", &api.ApplyRequest{FilePath: "a.py"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApply_PathEscape(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", 0, nil)

	resp := env.do(http.MethodPost, "/apply", token, &api.ApplyRequest{
		RepoURL:  ing.RepoURL,
		FilePath: "../escape.py",
		Content:  "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, err := os.Stat(filepath.Join(filepath.Dir(ing.LocalPath), "escape.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestApply_ValidationFailureBlocksWrite(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", 0, map[string]string{"a.py": "old\n"})
	env.validator.results = []editor.Result{{Command: "pytest", ReturnCode: 1, Stderr: "boom"}}

	resp := env.do(http.MethodPost, "/apply", token, &api.ApplyRequest{
		RepoURL:            ing.RepoURL,
		FilePath:           "a.py",
		Content:            "new\n",
		ValidationCommands: []string{"pytest"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decode[api.ErrorResponse](t, resp)
	require.Len(t, errResp.Results, 1)
	assert.Equal(t, 1, errResp.Results[0].ReturnCode)

	data, err := os.ReadFile(filepath.Join(ing.LocalPath, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data))
}

func TestApply_DefaultsToLatestIngestion(t *testing.T) {
	env := newTestEnv(t, true)
	user, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", user.ID, nil)

	resp := env.do(http.MethodPost, "/apply", token, &api.ApplyRequest{FilePath: "new.txt", Content: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := os.Stat(filepath.Join(ing.LocalPath, "new.txt"))
	assert.NoError(t, err)
}

func TestApply_NoIngestion(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")

	resp := env.do(http.MethodPost, "/apply", token, &api.ApplyRequest{FilePath: "a.py", Content: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApply_PreviewAndReview(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", 0, map[string]string{"a.py": "old\n"})

	resp := env.do(http.MethodPost, "/apply/preview", token, &api.ApplyPreviewRequest{
		RepoURL: ing.RepoURL, FilePath: "a.py", Content: "new\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ApplyResponse](t, resp)
	assert.Contains(t, got.Diff, "-old")
	assert.Contains(t, got.Diff, "+new")

	env.validator.results = []editor.Result{{Command: "pytest", ReturnCode: 0}}
	resp = env.do(http.MethodPost, "/apply/review", token, &api.ApplyReviewRequest{
		RepoURL: ing.RepoURL, FilePath: "a.py", Content: "new\n", ValidationCommands: []string{"pytest"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[api.ApplyResponse](t, resp)
	assert.Equal(t, "success", got.Status)
	assert.NotEmpty(t, got.Diff)
	assert.Len(t, got.Results, 1)

	// Preview never writes.
	data, err := os.ReadFile(filepath.Join(ing.LocalPath, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data))
}

func TestApply_Validate(t *testing.T) {
	env := newTestEnv(t, true)
	_, token := env.createUser("a@example.com")
	ing := env.ingested("https://github.com/o/r", 0, nil)
	env.validator.results = []editor.Result{{Command: "go vet ./...", ReturnCode: 2, Stderr: "bad"}}

	resp := env.do(http.MethodPost, "/apply/validate", token, &api.ApplyValidateRequest{
		RepoURL: ing.RepoURL, Commands: []string{"go vet ./..."},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ApplyResponse](t, resp)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 2, got.Results[0].ReturnCode)
	assert.Equal(t, [][]string{{"go vet ./..."}}, env.validator.calls)
}

func TestGraph(t *testing.T) {
	env := newTestEnv(t, true)
	ing := env.ingested("https://github.com/o/r", 0, map[string]string{
		"pkg/util.py": "x = 1\n",
		"main.py":     "from pkg.util import x\n",
	})

	resp := env.do(http.MethodGet, "/graph", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodGet, "/graph?repo_url=https://github.com/o/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(http.MethodGet, "/graph?repo_url="+ing.RepoURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g := decode[models.Graph](t, resp)
	assert.Len(t, g.Nodes, 2)
	assert.Equal(t, []models.GraphLink{{Source: "main.py", Target: "pkg/util.py"}}, g.Links)
}

func TestAdmin_RequiresToken(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodGet, "/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(http.MethodGet, "/admin/users", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_UserLifecycle(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(http.MethodPost, "/admin/users", testAdminToken, &api.AdminUserCreateRequest{Email: "new@example.com", Name: "New"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.AdminUserCreateResponse](t, resp)
	assert.Contains(t, created.Token, TokenPrefix)

	// The issued token logs in.
	resp = env.do(http.MethodGet, "/user/me", created.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodPost, "/admin/users", testAdminToken, &api.AdminUserCreateRequest{Email: "new@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(http.MethodGet, "/admin/users", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.User](t, resp), 1)

	resp = env.do(http.MethodDelete, "/admin/users/"+itoa(created.User.ID), testAdminToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(http.MethodDelete, "/admin/users/"+itoa(created.User.ID), testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_GC(t *testing.T) {
	env := newTestEnv(t, true)
	env.ingested("https://github.com/o/r", 0, nil)
	_, err := blobstore.PutBytes(context.Background(), env.blobs, []byte("orphan"))
	require.NoError(t, err)

	resp := env.do(http.MethodPost, "/admin/gc", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.GCResult](t, resp)
	assert.Equal(t, 2, got.BlobsScanned)
	assert.Equal(t, 1, got.BlobsDeleted)
}

func TestRateLimit(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.Stop()
	h := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(slog.Default())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCredentials_BearerBeatsCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", credentials(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", credentials(req))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
