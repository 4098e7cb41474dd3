package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Webhook event names.
const (
	EventIngestCompleted = "ingest.completed"
	EventIngestFailed    = "ingest.failed"
)

// WebhookEvent represents the payload sent to webhook URLs.
type WebhookEvent struct {
	Event     string           `json:"event"`
	JobID     string           `json:"job_id"`
	RepoURL   string           `json:"repo_url"`
	Status    models.JobStatus `json:"status"`
	Message   string           `json:"message,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// WebhookConfig holds the list of configured webhook URLs.
type WebhookConfig struct {
	URLs []string
}

// WebhookNotifier posts ingest job outcomes to configured URLs.
type WebhookNotifier struct {
	config *WebhookConfig
	client *http.Client
	logger *slog.Logger
	// backoff is the pause before retry attempt n (1-based).
	backoff func(n int) time.Duration

	wg sync.WaitGroup
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: func(n int) time.Duration { return time.Duration(n) * time.Second },
	}
}

// NotifyJob sends the outcome of a terminal job. Delivery is asynchronous.
// Non-terminal jobs are ignored.
func (wn *WebhookNotifier) NotifyJob(job *models.IngestJob) {
	if wn == nil || job == nil {
		return
	}

	var name string
	switch job.Status {
	case models.JobCompleted:
		name = EventIngestCompleted
	case models.JobFailed:
		name = EventIngestFailed
	default:
		return
	}

	event := &WebhookEvent{
		Event:     name,
		JobID:     job.ID,
		RepoURL:   job.RepoURL,
		Status:    job.Status,
		Message:   job.StatusMessage(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (wn *WebhookNotifier) Wait() {
	if wn != nil {
		wn.wg.Wait()
	}
}

func (wn *WebhookNotifier) send(event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(url, data); err != nil {
			wn.logger.Warn("webhook: delivery failed", "url", url, "error", err)
		} else {
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event, "job_id", event.JobID)
		}
	}
}

// post sends a single webhook POST, retrying network errors and 5xx twice.
func (wn *WebhookNotifier) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(wn.backoff(attempt))
		}
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ragchat-server/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
