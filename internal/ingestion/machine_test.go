package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// fakeBackend replays a scripted sequence of status responses.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	userErr  error
	session  *models.Session
	statuses []*api.IngestStatus
	pollErr  error
	polls    int
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) CurrentUser(context.Context) (*models.User, error) {
	f.record("CurrentUser")
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &models.User{ID: 1}, nil
}

func (f *fakeBackend) GetSession(_ context.Context, id int64) (*models.Session, error) {
	f.record("GetSession")
	if f.session == nil {
		return nil, &api.RemoteError{Status: 404, Code: "not_found", Message: "Session not found"}
	}
	return f.session, nil
}

func (f *fakeBackend) CreateSession(_ context.Context, repoURL, _ string) (*models.Session, error) {
	f.record("CreateSession")
	return &models.Session{ID: 7, RepoURL: repoURL}, nil
}

func (f *fakeBackend) StartIngest(_ context.Context, repoURL, _ string) (*api.IngestStatus, error) {
	f.record("StartIngest")
	return &api.IngestStatus{JobID: "job-1", Status: models.JobQueued, RepoURL: repoURL}, nil
}

func (f *fakeBackend) IngestStatus(context.Context, string) (*api.IngestStatus, error) {
	f.record("IngestStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	st := f.statuses[f.polls]
	if f.polls < len(f.statuses)-1 {
		f.polls++
	}
	return st, nil
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func fastPoll() *api.PollConfig {
	return &api.PollConfig{Interval: time.Millisecond, MaxAttempts: 100, MaxDuration: 5 * time.Second}
}

type observed struct {
	labels []string
	states []State
}

func observe(m *Machine) *observed {
	o := &observed{}
	m.OnLabel = func(l string) { o.labels = append(o.labels, l) }
	m.OnState = func(s State) { o.states = append(o.states, s) }
	return o
}

func TestRun_NoRepository(t *testing.T) {
	b := &fakeBackend{}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{})

	assert.Equal(t, StateError, res.State)
	assert.Equal(t, "no repository to ingest", res.Message)
	assert.ErrorIs(t, res.Err, ErrNoRepository)
	assert.Empty(t, b.calls)
}

func TestRun_ResumeTrustsSession(t *testing.T) {
	b := &fakeBackend{}
	m := New(b, fastPoll())
	o := observe(m)

	res := m.Run(context.Background(), Input{SessionID: 3, Resume: true})

	assert.Equal(t, StateReady, res.State)
	assert.Equal(t, int64(3), res.SessionID)
	assert.Empty(t, b.calls)
	assert.Equal(t, []State{StateLoading, StateReady}, o.states)
}

func TestRun_CompletedExample(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{
		{Status: models.JobRunning, Message: "Cloning"},
		{Status: models.JobRunning, Message: "Cloning"},
		{Status: models.JobCompleted},
	}}
	m := New(b, fastPoll())
	o := observe(m)

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	require.Equal(t, StateReady, res.State)
	assert.Equal(t, []string{"Cloning repository", "Cloning", "Cloning", "Completed"}, o.labels)
	assert.Equal(t, int64(7), res.SessionID)
	assert.Equal(t, "https://github.com/acme/widgets", res.RepoURL)
	assert.Equal(t, 3, b.count("IngestStatus"), "polling stops at the terminal status")
	assert.Equal(t, []State{StateLoading, StateReady}, o.states, "ready is entered exactly once")
}

func TestRun_EmptyMessageUsesDefaultLabel(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{
		{Status: models.JobQueued},
		{Status: models.JobCompleted},
	}}
	m := New(b, fastPoll())
	o := observe(m)

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	require.Equal(t, StateReady, res.State)
	assert.Equal(t, []string{LabelSubmitted, LabelWorking, LabelCompleted}, o.labels)
}

func TestRun_Failed(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{
		{Status: models.JobRunning, Message: "Cloning repository"},
		{Status: models.JobFailed, Message: "clone: repository not found"},
	}}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/missing"})

	assert.Equal(t, StateError, res.State)
	assert.Equal(t, "clone: repository not found", res.Message)
	assert.Equal(t, 2, b.count("IngestStatus"))
}

func TestRun_FailedWithoutMessage(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{{Status: models.JobFailed}}}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	assert.Equal(t, StateError, res.State)
	assert.Equal(t, "ingestion failed", res.Message)
}

func TestRun_Unauthenticated(t *testing.T) {
	b := &fakeBackend{userErr: &api.RemoteError{Status: 401, Code: "auth_failed"}}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	assert.Equal(t, StateUnauthenticated, res.State)
	assert.Equal(t, []string{"CurrentUser"}, b.calls, "no further calls after auth failure")
}

func TestRun_UnauthorizedDuringPoll(t *testing.T) {
	b := &fakeBackend{pollErr: &api.RemoteError{Status: 401, Code: "auth_failed"}}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	assert.Equal(t, StateUnauthenticated, res.State)
}

func TestRun_SessionOnlyRecoversURL(t *testing.T) {
	b := &fakeBackend{
		session:  &models.Session{ID: 5, RepoURL: "https://github.com/acme/widgets"},
		statuses: []*api.IngestStatus{{Status: models.JobCompleted}},
	}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{SessionID: 5})

	require.Equal(t, StateReady, res.State)
	assert.Equal(t, int64(5), res.SessionID)
	assert.Equal(t, "https://github.com/acme/widgets", res.RepoURL)
	assert.Equal(t, 0, b.count("CreateSession"))
}

func TestRun_SessionWithoutURL(t *testing.T) {
	b := &fakeBackend{session: &models.Session{ID: 5}}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{SessionID: 5})

	assert.Equal(t, StateError, res.State)
	assert.ErrorIs(t, res.Err, ErrNoRepository)
	assert.Equal(t, 0, b.count("StartIngest"))
}

func TestRun_MissingSession(t *testing.T) {
	b := &fakeBackend{}
	m := New(b, fastPoll())

	res := m.Run(context.Background(), Input{SessionID: 99})

	assert.Equal(t, StateError, res.State)
	assert.True(t, api.IsNotFound(res.Err))
}

func TestRun_PollBudget(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{{Status: models.JobRunning, Message: "Packing repository"}}}
	m := New(b, &api.PollConfig{Interval: time.Millisecond, MaxAttempts: 3})

	res := m.Run(context.Background(), Input{RepoURL: "https://github.com/acme/widgets"})

	assert.Equal(t, StateError, res.State)
	assert.ErrorIs(t, res.Err, api.ErrPollBudgetExceeded)
	assert.Equal(t, 3, b.count("IngestStatus"))
}

func TestRun_Cancelled(t *testing.T) {
	b := &fakeBackend{statuses: []*api.IngestStatus{{Status: models.JobRunning}}}
	m := New(b, &api.PollConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	m.OnLabel = func(l string) {
		if l == LabelWorking {
			cancel()
		}
	}

	res := m.Run(ctx, Input{RepoURL: "https://github.com/acme/widgets"})

	assert.Equal(t, StateError, res.State)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, 1, b.count("IngestStatus"))
}
