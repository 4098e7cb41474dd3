package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// ErrQueueFull is returned when no worker slot or queue slot is free.
var ErrQueueFull = errors.New("ingest queue is full")

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("ingest queue is closed")

// JobStore is the persistence a Queue needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestJob) error
	GetJob(ctx context.Context, id string) (*models.IngestJob, error)
	SetStep(ctx context.Context, id, step string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, message string) error
}

// Notifier is told about every job that reaches a terminal status.
type Notifier interface {
	NotifyJob(job *models.IngestJob)
}

// Runner executes one ingestion.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(step string)) (*Result, error)
}

type task struct {
	id  string
	req Request
}

// Queue runs ingest jobs on a fixed number of workers.
type Queue struct {
	runner   Runner
	jobs     JobStore
	notifier Notifier
	logger   *slog.Logger

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts workers goroutines. queueSize bounds jobs waiting for a worker.
func NewQueue(runner Runner, jobs JobStore, notifier Notifier, workers, queueSize int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:   runner,
		jobs:     jobs,
		notifier: notifier,
		logger:   logger,
		tasks:    make(chan task, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Submit records a queued job and schedules it.
func (q *Queue) Submit(ctx context.Context, req Request) (*models.IngestJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	job := &models.IngestJob{
		ID:          uuid.New().String(),
		RepoURL:     req.RepoURL,
		DocsURL:     req.DocsURL,
		UserID:      req.UserID,
		Status:      models.JobQueued,
		CurrentStep: "Queued",
	}
	if err := q.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	select {
	case q.tasks <- task{id: job.ID, req: req}:
		q.logger.Info("ingest job queued", "job_id", job.ID, "repo_url", req.RepoURL)
		return job, nil
	default:
		_ = q.jobs.Fail(ctx, job.ID, ErrQueueFull.Error())
		return nil, ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.process(t)
	}
}

func (q *Queue) process(t task) {
	log := q.logger.With("job_id", t.id, "repo_url", t.req.RepoURL)
	ctx := q.ctx

	progress := func(step string) {
		if err := q.jobs.SetStep(ctx, t.id, step); err != nil {
			log.Warn("record step", "step", step, "error", err)
			return
		}
		log.Info("ingest step", "step", step)
	}

	_, err := q.runner.Run(ctx, t.req, progress)
	// Terminal writes use a fresh context so shutdown still records them.
	if err != nil {
		log.Error("ingest job failed", "error", err)
		if ferr := q.jobs.Fail(context.Background(), t.id, err.Error()); ferr != nil {
			log.Warn("record failure", "error", ferr)
		}
	} else if cerr := q.jobs.Complete(context.Background(), t.id); cerr != nil {
		log.Warn("record completion", "error", cerr)
	}

	if q.notifier != nil {
		if job, gerr := q.jobs.GetJob(context.Background(), t.id); gerr == nil {
			q.notifier.NotifyJob(job)
		}
	}
}

// Close stops accepting jobs, cancels running ones and waits for workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
