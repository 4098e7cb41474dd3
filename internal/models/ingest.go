package models

import "time"

// JobStatus is the lifecycle state of an ingest job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// rank orders statuses so transitions can be checked for monotonicity.
func (s JobStatus) rank() int {
	switch s {
	case JobQueued:
		return 0
	case JobRunning:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// IngestJob is the server-side record of an asynchronous ingestion.
type IngestJob struct {
	ID           string    `json:"id"`
	RepoURL      string    `json:"repo_url"`
	DocsURL      string    `json:"docs_url,omitempty"`
	UserID       int64     `json:"user_id,omitempty"`
	Status       JobStatus `json:"status"`
	CurrentStep  string    `json:"current_step"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusMessage is the human-readable message reported to pollers.
func (j *IngestJob) StatusMessage() string {
	if j.Status == JobFailed {
		return j.ErrorMessage
	}
	return j.CurrentStep
}

// RepoIngestion is the persisted result of ingesting one repository.
type RepoIngestion struct {
	ID          int64     `json:"id"`
	RepoURL     string    `json:"repo_url"`
	UserID      int64     `json:"user_id,omitempty"`
	RepoIndex   string    `json:"repo_index"`
	ContentHash string    `json:"content_hash"`
	LocalPath   string    `json:"local_path"`
	TokenCount  int       `json:"token_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
