// Package ingestion drives a repository from "requested" to "ready to chat".
//
// A Machine resolves a chat session, submits an asynchronous ingest job and
// polls it until the job reaches a terminal status. The outcome is one of
// four states; once a run leaves StateLoading it never changes again.
package ingestion

import (
	"context"
	"errors"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// State is the client-visible ingestion status.
type State string

const (
	StateLoading         State = "loading"
	StateReady           State = "ready"
	StateError           State = "error"
	StateUnauthenticated State = "unauthenticated"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != StateLoading
}

// Progress labels shown while a job runs. They are display text only.
const (
	LabelSubmitted = "Cloning repository"
	LabelWorking   = "Indexing repository"
	LabelCompleted = "Completed"
)

// ErrNoRepository is the fixed failure when neither a repository URL nor a
// session can be resolved.
var ErrNoRepository = errors.New("no repository to ingest")

const defaultFailure = "ingestion failed"

// Backend is the subset of api.Client the machine needs.
type Backend interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	CreateSession(ctx context.Context, repoURL, name string) (*models.Session, error)
	StartIngest(ctx context.Context, repoURL, docsURL string) (*api.IngestStatus, error)
	IngestStatus(ctx context.Context, jobID string) (*api.IngestStatus, error)
}

// Input selects what to ingest. At least one of RepoURL and SessionID is required.
type Input struct {
	RepoURL   string
	SessionID int64
	DocsURL   string
	// Resume trusts SessionID as already ingested and skips all network calls.
	Resume bool
}

// Result is the terminal outcome of a run.
type Result struct {
	State     State
	SessionID int64
	RepoURL   string
	Message   string
	Err       error
}

// Machine runs ingestions against a Backend.
type Machine struct {
	backend Backend
	poll    *api.PollConfig

	// OnLabel receives every progress label in order.
	OnLabel func(label string)
	// OnState receives every state the run enters, starting with StateLoading.
	OnState func(state State)
}

// New creates a Machine. A nil poll config uses api.DefaultPollConfig.
func New(backend Backend, poll *api.PollConfig) *Machine {
	if poll == nil {
		poll = api.DefaultPollConfig()
	}
	return &Machine{backend: backend, poll: poll}
}

func (m *Machine) label(s string) {
	if m.OnLabel != nil {
		m.OnLabel(s)
	}
}

func (m *Machine) enter(s State) {
	if m.OnState != nil {
		m.OnState(s)
	}
}

// Run resolves in to a ready session or a failure. Cancelling ctx stops
// polling and ends the run in StateError.
func (m *Machine) Run(ctx context.Context, in Input) *Result {
	m.enter(StateLoading)
	res := m.run(ctx, in)
	m.enter(res.State)
	return res
}

func (m *Machine) run(ctx context.Context, in Input) *Result {
	if in.RepoURL == "" && in.SessionID == 0 {
		return fail(ErrNoRepository)
	}

	if in.SessionID != 0 && in.Resume {
		return &Result{State: StateReady, SessionID: in.SessionID, RepoURL: in.RepoURL}
	}

	if _, err := m.backend.CurrentUser(ctx); err != nil {
		return classify(err)
	}

	repoURL := in.RepoURL
	sessionID := in.SessionID

	if repoURL == "" {
		s, err := m.backend.GetSession(ctx, sessionID)
		if err != nil {
			return classify(err)
		}
		repoURL = s.RepoURL
	}
	if repoURL == "" {
		return fail(ErrNoRepository)
	}

	if sessionID == 0 {
		s, err := m.backend.CreateSession(ctx, repoURL, "")
		if err != nil {
			return classify(err)
		}
		sessionID = s.ID
	}

	job, err := m.backend.StartIngest(ctx, repoURL, in.DocsURL)
	if err != nil {
		return classify(err)
	}
	m.label(LabelSubmitted)

	var failed *api.IngestStatus
	err = api.Poll(ctx, m.poll, func(ctx context.Context, _ int) (bool, error) {
		st, err := m.backend.IngestStatus(ctx, job.JobID)
		if err != nil {
			return false, err
		}
		switch st.Status {
		case models.JobCompleted:
			m.label(LabelCompleted)
			return true, nil
		case models.JobFailed:
			failed = st
			return true, nil
		default:
			if st.Message != "" {
				m.label(st.Message)
			} else {
				m.label(LabelWorking)
			}
			return false, nil
		}
	})
	if err != nil {
		res := classify(err)
		res.SessionID = sessionID
		res.RepoURL = repoURL
		return res
	}

	if failed != nil {
		msg := failed.Message
		if msg == "" {
			msg = defaultFailure
		}
		return &Result{State: StateError, SessionID: sessionID, RepoURL: repoURL, Message: msg}
	}

	return &Result{State: StateReady, SessionID: sessionID, RepoURL: repoURL}
}

func fail(err error) *Result {
	return &Result{State: StateError, Message: err.Error(), Err: err}
}

// classify maps authorization failures to StateUnauthenticated and
// everything else to StateError.
func classify(err error) *Result {
	if errors.Is(err, api.ErrUnauthorized) {
		return &Result{State: StateUnauthenticated, Message: "login required", Err: err}
	}
	return &Result{State: StateError, Message: err.Error(), Err: err}
}
