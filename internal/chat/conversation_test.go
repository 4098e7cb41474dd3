package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

type fakeBackend struct {
	stored  []models.Message
	loadErr error
	sendErr error
	reqs    []*api.ChatRequest
	ids     []int64
}

func (f *fakeBackend) SessionMessages(context.Context, int64) ([]models.Message, error) {
	return f.stored, f.loadErr
}

func (f *fakeBackend) SendChat(_ context.Context, id int64, req *api.ChatRequest) (*api.ChatResponse, error) {
	f.ids = append(f.ids, id)
	f.reqs = append(f.reqs, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &api.ChatResponse{
		Response:  "echo: " + req.Message,
		SessionID: id,
		Citations: []models.Citation{{Path: "main.go", StartLine: 1, EndLine: 20}},
	}, nil
}

func TestLoad_Replaces(t *testing.T) {
	f := &fakeBackend{stored: []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleModel, Content: "hello"},
	}}
	c := New(f, 7, "")
	_, _ = c.Send(context.Background(), "local")

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, f.stored, c.Messages())
}

func TestLoad_Error(t *testing.T) {
	c := New(&fakeBackend{loadErr: errors.New("down")}, 7, "")
	err := c.Load(context.Background())
	assert.ErrorContains(t, err, "load messages: down")
}

func TestSend_AppendsUserThenModel(t *testing.T) {
	f := &fakeBackend{}
	c := New(f, 7, "https://github.com/o/r")

	reply, err := c.Send(context.Background(), "what does main do?")
	require.NoError(t, err)
	assert.Equal(t, "echo: what does main do?", reply.Content)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "what does main do?"},
		{Role: models.RoleModel, Content: "echo: what does main do?"},
	}, c.Messages())
	assert.Len(t, c.Citations(), 1)

	// A stored session carries its own history and repository.
	assert.Equal(t, []int64{7}, f.ids)
	assert.Empty(t, f.reqs[0].RepoURL)
	assert.Nil(t, f.reqs[0].History)
}

func TestSend_FailureAppendsErrorMessage(t *testing.T) {
	f := &fakeBackend{sendErr: errors.New("remote error (503): llm_unavailable: LLM is not configured")}
	c := New(f, 7, "")

	reply, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, models.RoleModel, reply.Role)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error: remote error (503): llm_unavailable: LLM is not configured", msgs[1].Content)

	// The conversation keeps going after a failure.
	f.sendErr = nil
	_, err = c.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, c.Messages(), 4)
}

func TestSend_WithoutSessionSendsHistory(t *testing.T) {
	f := &fakeBackend{}
	c := New(f, 0, "https://github.com/o/r")

	_, err := c.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "two")
	require.NoError(t, err)

	require.Len(t, f.reqs, 2)
	assert.Equal(t, "https://github.com/o/r", f.reqs[1].RepoURL)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleModel, Content: "echo: one"},
	}, f.reqs[1].History)
}
