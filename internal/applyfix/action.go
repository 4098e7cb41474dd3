// Package applyfix applies one proposed file patch through the server.
package applyfix

import (
	"context"
	"errors"
	"sync"

	"github.com/ubaidzafar05/Rag-github/internal/api"
)

// State is the lifecycle of one apply.
type State string

const (
	StateIdle     State = "idle"
	StateApplying State = "applying"
	StateSuccess  State = "success"
	StateError    State = "error"
)

// ErrNotIdle is returned when Apply is called more than once.
var ErrNotIdle = errors.New("apply already started")

// Applier is the remote side of an apply.
type Applier interface {
	Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error)
}

// Action applies a single file patch. Create one per patch.
type Action struct {
	applier Applier
	req     api.ApplyRequest

	mu    sync.Mutex
	state State
	msg   string
	err   error
}

// New creates an idle Action for the patch.
func New(applier Applier, filePath, content, repoURL string) *Action {
	return &Action{
		applier: applier,
		req:     api.ApplyRequest{FilePath: filePath, Content: content, RepoURL: repoURL},
		state:   StateIdle,
	}
}

// State returns the current state.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Message returns the server's success message, or the error text.
func (a *Action) Message() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.msg
}

// Err returns the failure, if any.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// begin moves idle to applying. It reports false if the action was not idle.
func (a *Action) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return false
	}
	a.state = StateApplying
	return true
}

// Apply sends the patch. The action is in StateApplying before the request
// is made and ends in exactly one of StateSuccess or StateError. Calls after
// the first return ErrNotIdle and change nothing.
func (a *Action) Apply(ctx context.Context) error {
	if !a.begin() {
		return ErrNotIdle
	}

	resp, err := a.applier.Apply(ctx, &a.req)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.state = StateError
		a.err = err
		a.msg = err.Error()
		return err
	}
	a.state = StateSuccess
	if resp != nil {
		a.msg = resp.Message
	}
	return nil
}
