package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// AdminClient communicates with the server's admin API.
// It authenticates with the admin token and does not implement Client.
type AdminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAdminClient creates an admin API client. Warns if baseURL uses http://.
func NewAdminClient(baseURL, token string) *AdminClient {
	if strings.HasPrefix(baseURL, "http://") && !isLoopback(baseURL) {
		fmt.Fprintf(os.Stderr, "warning: sending credentials over unencrypted HTTP connection\n")
	}
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func isLoopback(u string) bool {
	return strings.HasPrefix(u, "http://localhost") || strings.HasPrefix(u, "http://127.0.0.1")
}

// AdminUserCreateRequest is the request body for POST /admin/users.
type AdminUserCreateRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// AdminUserCreateResponse carries the raw token, which is shown exactly once.
type AdminUserCreateResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// GCResult is the outcome of a maintenance pass.
type GCResult struct {
	BlobsScanned int `json:"blobs_scanned"`
	BlobsDeleted int `json:"blobs_deleted"`
	JobsPruned   int `json:"jobs_pruned"`
	ClonesPruned int `json:"clones_pruned"`
}

func (c *AdminClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func (c *AdminClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
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

// CreateUser calls POST /admin/users. The raw token is only available in the
// response; the server stores its hash.
func (c *AdminClient) CreateUser(ctx context.Context, email, name string) (*AdminUserCreateResponse, error) {
	var resp AdminUserCreateResponse
	req := &AdminUserCreateRequest{Email: email, Name: name}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/admin/users", req, &resp); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &resp, nil
}

// ListUsers calls GET /admin/users.
func (c *AdminClient) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/admin/users", nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser calls DELETE /admin/users/{id}.
func (c *AdminClient) DeleteUser(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, c.baseURL+"/admin/users/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("delete user: %w", decodeError(resp))
	}
	return nil
}

// GarbageCollect calls POST /admin/gc.
func (c *AdminClient) GarbageCollect(ctx context.Context) (*GCResult, error) {
	var res GCResult
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/admin/gc", nil, &res); err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	return &res, nil
}
