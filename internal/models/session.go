package models

import "time"

// DefaultSessionName is used when a session is created without a name.
const DefaultSessionName = "New Chat"

// Session is a conversation bound to exactly one repository.
type Session struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RepoURL     string    `json:"repo_url"`
	CreatedAt   time.Time `json:"created_at"`
	LastMessage *string   `json:"last_message"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Preview shortens message content for session listings.
func Preview(content string) string {
	r := []rune(content)
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r) + "..."
}
