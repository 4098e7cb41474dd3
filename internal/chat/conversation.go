// Package chat keeps the message list of one chat session.
package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Backend is the subset of api.Client a Conversation uses.
type Backend interface {
	SessionMessages(ctx context.Context, id int64) ([]models.Message, error)
	SendChat(ctx context.Context, sessionID int64, req *api.ChatRequest) (*api.ChatResponse, error)
}

// Conversation is an append-only, ordered list of messages bound to a
// session. It is safe for concurrent use.
type Conversation struct {
	backend   Backend
	sessionID int64
	repoURL   string

	mu        sync.Mutex
	messages  []models.Message
	citations []models.Citation
}

// New creates an empty conversation for the session. repoURL is sent with
// each message for servers that chat without a stored session.
func New(backend Backend, sessionID int64, repoURL string) *Conversation {
	return &Conversation{backend: backend, sessionID: sessionID, repoURL: repoURL}
}

// SessionID returns the bound session.
func (c *Conversation) SessionID() int64 { return c.sessionID }

// Load replaces the list with the session's stored messages.
func (c *Conversation) Load(ctx context.Context) error {
	msgs, err := c.backend.SessionMessages(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	c.mu.Lock()
	c.messages = append([]models.Message(nil), msgs...)
	c.mu.Unlock()
	return nil
}

// Messages returns a copy of the list.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// Citations returns the citations of the last successful response.
func (c *Conversation) Citations() []models.Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Citation(nil), c.citations...)
}

func (c *Conversation) append(m models.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// Send appends the user's text, asks the server, and appends the reply. On
// failure it appends a single "Error: ..." model message instead and returns
// the error; the conversation stays usable.
func (c *Conversation) Send(ctx context.Context, text string) (models.Message, error) {
	c.append(models.Message{Role: models.RoleUser, Content: text})

	req := &api.ChatRequest{Message: text}
	if c.sessionID == 0 {
		req.RepoURL = c.repoURL
		req.History = c.history()
	}

	resp, err := c.backend.SendChat(ctx, c.sessionID, req)
	if err != nil {
		reply := models.Message{Role: models.RoleModel, Content: "Error: " + err.Error()}
		c.append(reply)
		return reply, err
	}

	reply := models.Message{Role: models.RoleModel, Content: resp.Response}
	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.citations = resp.Citations
	c.mu.Unlock()
	return reply, nil
}

// history returns everything before the message just appended.
func (c *Conversation) history() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) <= 1 {
		return nil
	}
	return append([]models.Message(nil), c.messages[:len(c.messages)-1]...)
}
