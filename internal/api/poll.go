package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrPollBudgetExceeded is returned when polling runs out of attempts or time.
var ErrPollBudgetExceeded = errors.New("poll budget exceeded")

// PollConfig bounds a fixed-interval polling task.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int           // 0 means unbounded
	MaxDuration time.Duration // 0 means unbounded
	// MaxTransientErrors is how many consecutive transient failures are
	// tolerated before the error is returned.
	MaxTransientErrors int
}

// DefaultPollConfig polls every 1.5s for at most ten minutes.
func DefaultPollConfig() *PollConfig {
	return &PollConfig{
		Interval:    1500 * time.Millisecond,
		MaxAttempts: 400,
		MaxDuration: 10 * time.Minute,
	}
}

// PollFunc performs one attempt. It returns done=true once a terminal
// condition is observed.
type PollFunc func(ctx context.Context, attempt int) (done bool, err error)

// isTransient returns true for errors that are worth polling through.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll waits one interval, then calls fn, until fn reports done, fn fails,
// the budget runs out or ctx is cancelled. The context is checked before
// every attempt.
func Poll(ctx context.Context, cfg *PollConfig, fn PollFunc) error {
	if cfg == nil {
		cfg = DefaultPollConfig()
	}

	parent := ctx
	if cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxDuration)
		defer cancel()
	}

	budgetErr := func(attempts int) error {
		if cfg.MaxDuration <= 0 {
			return fmt.Errorf("%w: %d attempts", ErrPollBudgetExceeded, attempts)
		}
		return fmt.Errorf("%w: %d attempts in %s", ErrPollBudgetExceeded, attempts, cfg.MaxDuration)
	}

	transient := 0
	for attempt := 1; ; attempt++ {
		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			return budgetErr(attempt - 1)
		}
		if err := sleep(ctx, cfg.Interval); err != nil {
			if parent.Err() == nil {
				return budgetErr(attempt - 1)
			}
			return fmt.Errorf("poll cancelled: %w", parent.Err())
		}
		if err := ctx.Err(); err != nil {
			if parent.Err() == nil {
				return budgetErr(attempt - 1)
			}
			return fmt.Errorf("poll cancelled: %w", parent.Err())
		}

		done, err := fn(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil && parent.Err() == nil {
				return budgetErr(attempt)
			}
			if isTransient(err) && transient < cfg.MaxTransientErrors {
				transient++
				continue
			}
			return err
		}
		transient = 0
		if done {
			return nil
		}
	}
}
