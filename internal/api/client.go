// Package api is the typed RPC boundary between the ragchat client and server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// SessionCookie is the name of the cookie carrying login credentials.
const SessionCookie = "ragchat_session"

// ErrUnauthorized marks errors caused by missing or rejected credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Client defines the contract for talking to a ragchat server.
type Client interface {
	CurrentUser(ctx context.Context) (*models.User, error)

	StartIngest(ctx context.Context, repoURL, docsURL string) (*IngestStatus, error)
	IngestStatus(ctx context.Context, jobID string) (*IngestStatus, error)

	CreateSession(ctx context.Context, repoURL, name string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	DeleteSession(ctx context.Context, id int64) error
	SessionMessages(ctx context.Context, id int64) ([]models.Message, error)

	SendChat(ctx context.Context, sessionID int64, req *ChatRequest) (*ChatResponse, error)

	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)
	PreviewApply(ctx context.Context, req *ApplyPreviewRequest) (*ApplyResponse, error)
	ValidateApply(ctx context.Context, req *ApplyValidateRequest) (*ApplyResponse, error)
	ReviewApply(ctx context.Context, req *ApplyReviewRequest) (*ApplyResponse, error)

	Graph(ctx context.Context, repoURL string) (*models.Graph, error)
}

// CredentialsMode selects how credentials travel with requests.
type CredentialsMode string

const (
	// CredentialsCookie logs in once and sends the session cookie afterwards.
	CredentialsCookie CredentialsMode = "cookie"
	// CredentialsBearer sends the token in an Authorization header.
	CredentialsBearer CredentialsMode = "bearer"
)

// ClientConfig is everything an HTTPClient needs; nothing is read from globals.
type ClientConfig struct {
	BaseURL     string
	Token       string
	Credentials CredentialsMode
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL     string
	token       string
	credentials CredentialsMode
	httpClient  *http.Client

	loginMu  sync.Mutex
	loggedIn bool
}

// NewHTTPClient creates an HTTP-based client from an explicit configuration.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.Credentials == "" {
		cfg.Credentials = CredentialsCookie
	}
	if cfg.Credentials != CredentialsCookie && cfg.Credentials != CredentialsBearer {
		return nil, fmt.Errorf("unknown credentials mode %q", cfg.Credentials)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Credentials == CredentialsCookie && hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		credentials: cfg.Credentials,
		httpClient:  hc,
	}, nil
}

func (c *HTTPClient) url(path string) string {
	return c.baseURL + path
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.credentials == CredentialsBearer && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// ensureLogin exchanges the token for a session cookie on first use.
func (c *HTTPClient) ensureLogin(ctx context.Context) error {
	if c.credentials != CredentialsCookie || c.token == "" {
		return nil
	}
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}
	if _, err := c.login(ctx, c.token); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

func (c *HTTPClient) login(ctx context.Context, token string) (*models.User, error) {
	data, err := json.Marshal(&LoginRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/login"), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("login: %w", decodeError(resp))
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}
	return &user, nil
}

// Login exchanges token for a session cookie and returns the user it belongs to.
// In bearer mode it only verifies the token.
func (c *HTTPClient) Login(ctx context.Context, token string) (*models.User, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	c.token = token
	if c.credentials == CredentialsBearer {
		c.loggedIn = true
		return c.CurrentUser(ctx)
	}
	user, err := c.login(ctx, token)
	if err != nil {
		return nil, err
	}
	c.loggedIn = true
	return user, nil
}

// Logout clears the session cookie on the server and forgets the token.
func (c *HTTPClient) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, c.url("/logout"), nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.loginMu.Lock()
	c.token = ""
	c.loggedIn = false
	c.loginMu.Unlock()
	return nil
}

// CurrentUser returns the authenticated user. A missing login unwraps to ErrUnauthorized.
func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, http.MethodGet, c.url("/user/me"), nil, &user); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &user, nil
}

// StartIngest submits an asynchronous ingest job.
func (c *HTTPClient) StartIngest(ctx context.Context, repoURL, docsURL string) (*IngestStatus, error) {
	req := &IngestRequest{RepoURL: repoURL, DocsURL: docsURL}
	var resp IngestStatus
	if err := c.doJSON(ctx, http.MethodPost, c.url("/ingest/async"), req, &resp); err != nil {
		return nil, fmt.Errorf("start ingest: %w", err)
	}
	return &resp, nil
}

// IngestStatus polls the status of an ingest job.
func (c *HTTPClient) IngestStatus(ctx context.Context, jobID string) (*IngestStatus, error) {
	var resp IngestStatus
	if err := c.doJSON(ctx, http.MethodGet, c.url("/ingest/status/"+url.PathEscape(jobID)), nil, &resp); err != nil {
		return nil, fmt.Errorf("ingest status %s: %w", jobID, err)
	}
	return &resp, nil
}

// IngestSync runs an ingestion inside the request and waits for it.
func (c *HTTPClient) IngestSync(ctx context.Context, repoURL, docsURL string) (*IngestResult, error) {
	req := &IngestRequest{RepoURL: repoURL, DocsURL: docsURL}
	var resp IngestResult
	if err := c.doJSON(ctx, http.MethodPost, c.url("/ingest"), req, &resp); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return &resp, nil
}

// CreateSession creates a session bound to repoURL.
func (c *HTTPClient) CreateSession(ctx context.Context, repoURL, name string) (*models.Session, error) {
	req := &CreateSessionRequest{RepoURL: repoURL, Name: name}
	var s models.Session
	if err := c.doJSON(ctx, http.MethodPost, c.url("/sessions"), req, &s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// ListSessions returns the user's sessions, newest first.
func (c *HTTPClient) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := c.doJSON(ctx, http.MethodGet, c.url("/sessions"), nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns a single session.
func (c *HTTPClient) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	var s models.Session
	if err := c.doJSON(ctx, http.MethodGet, c.url(sessionPath(id)), nil, &s); err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return &s, nil
}

// DeleteSession removes a session and its messages.
func (c *HTTPClient) DeleteSession(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, c.url(sessionPath(id)), nil, nil); err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	return nil
}

// SessionMessages returns the ordered messages of a session.
func (c *HTTPClient) SessionMessages(ctx context.Context, id int64) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.doJSON(ctx, http.MethodGet, c.url(sessionPath(id)+"/messages"), nil, &msgs); err != nil {
		return nil, fmt.Errorf("session messages %d: %w", id, err)
	}
	return msgs, nil
}

// SendChat sends one message. A zero sessionID sends an unscoped message.
func (c *HTTPClient) SendChat(ctx context.Context, sessionID int64, req *ChatRequest) (*ChatResponse, error) {
	u := c.url("/chat")
	if sessionID != 0 {
		u += "?session_id=" + strconv.FormatInt(sessionID, 10)
	}
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, u, req, &resp); err != nil {
		return nil, fmt.Errorf("send chat: %w", err)
	}
	return &resp, nil
}

// Apply writes a proposed file into the ingested repository.
func (c *HTTPClient) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	var resp ApplyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url("/apply"), req, &resp); err != nil {
		return nil, fmt.Errorf("apply %s: %w", req.FilePath, err)
	}
	return &resp, nil
}

// PreviewApply returns the diff a proposed file would produce.
func (c *HTTPClient) PreviewApply(ctx context.Context, req *ApplyPreviewRequest) (*ApplyResponse, error) {
	var resp ApplyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url("/apply/preview"), req, &resp); err != nil {
		return nil, fmt.Errorf("preview %s: %w", req.FilePath, err)
	}
	return &resp, nil
}

// ValidateApply runs validation commands in the ingested repository.
func (c *HTTPClient) ValidateApply(ctx context.Context, req *ApplyValidateRequest) (*ApplyResponse, error) {
	var resp ApplyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url("/apply/validate"), req, &resp); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &resp, nil
}

// ReviewApply returns a diff plus validation results.
func (c *HTTPClient) ReviewApply(ctx context.Context, req *ApplyReviewRequest) (*ApplyResponse, error) {
	var resp ApplyResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url("/apply/review"), req, &resp); err != nil {
		return nil, fmt.Errorf("review %s: %w", req.FilePath, err)
	}
	return &resp, nil
}

// Graph returns the file/import graph of an ingested repository.
func (c *HTTPClient) Graph(ctx context.Context, repoURL string) (*models.Graph, error) {
	var g models.Graph
	u := c.url("/graph?repo_url=" + url.QueryEscape(repoURL))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &g); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	return &g, nil
}

func sessionPath(id int64) string {
	return "/sessions/" + strconv.FormatInt(id, 10)
}

// RemoteError represents a structured error from the server.
type RemoteError struct {
	Code    string
	Message string
	Status  int
	Results []ValidationResult
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap exposes ErrUnauthorized for 401 responses.
func (e *RemoteError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
		Results: errResp.Results,
	}
}

var _ Client = (*HTTPClient)(nil)
