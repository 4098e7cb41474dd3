package api

import "github.com/ubaidzafar05/Rag-github/internal/models"

// IngestRequest starts an ingestion of a repository.
type IngestRequest struct {
	RepoURL string `json:"repo_url"`
	DocsURL string `json:"docs_url,omitempty"`
}

// IngestStatus is the pollable state of an ingest job.
type IngestStatus struct {
	JobID   string           `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	RepoURL string           `json:"repo_url,omitempty"`
}

// IngestResult is returned by the synchronous ingest endpoint.
type IngestResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Size    int    `json:"size"`
}

// CreateSessionRequest creates a session bound to a repository.
type CreateSessionRequest struct {
	RepoURL string `json:"repo_url"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest sends one user message. History is ignored when the
// request is scoped to a session.
type ChatRequest struct {
	Message string           `json:"message"`
	History []models.Message `json:"history,omitempty"`
	RepoURL string           `json:"repo_url,omitempty"`
}

// ChatResponse carries the model answer and the chunks it was grounded on.
type ChatResponse struct {
	Response  string            `json:"response"`
	SessionID int64             `json:"session_id"`
	Citations []models.Citation `json:"citations"`
}

// ApplyRequest writes a full replacement file into the ingested repository.
type ApplyRequest struct {
	FilePath           string   `json:"file_path"`
	Content            string   `json:"content"`
	RepoURL            string   `json:"repo_url,omitempty"`
	ValidationCommands []string `json:"validation_commands,omitempty"`
}

// ApplyPreviewRequest asks for a diff without writing.
type ApplyPreviewRequest struct {
	RepoURL  string `json:"repo_url,omitempty"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// ApplyValidateRequest runs validation commands in the repository.
type ApplyValidateRequest struct {
	RepoURL  string   `json:"repo_url,omitempty"`
	Commands []string `json:"commands"`
}

// ApplyReviewRequest combines a preview with validation.
type ApplyReviewRequest struct {
	RepoURL            string   `json:"repo_url,omitempty"`
	FilePath           string   `json:"file_path"`
	Content            string   `json:"content"`
	ValidationCommands []string `json:"validation_commands,omitempty"`
}

// ValidationResult is the outcome of one validation command.
type ValidationResult struct {
	Command    string `json:"command"`
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// ApplyResponse is shared by the apply family of endpoints.
type ApplyResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message,omitempty"`
	Diff    string             `json:"diff,omitempty"`
	Results []ValidationResult `json:"results,omitempty"`
}

// StatusResponse is a plain confirmation.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LoginRequest exchanges a user token for a session cookie.
type LoginRequest struct {
	Token string `json:"token"`
}

// ErrorResponse is the structured error format returned by the server.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Results []ValidationResult `json:"results,omitempty"`
}
