// Package jobstore persists asynchronous ingest jobs and the retrieval index
// cache in a bbolt database.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("not found")
	// ErrTerminal is returned for any update to a completed or failed job.
	ErrTerminal = errors.New("job already finished")
	// ErrBadTransition is returned when an update would move a job backwards.
	ErrBadTransition = errors.New("invalid job status transition")
)

var (
	bucketJobs  = []byte("jobs")
	bucketIndex = []byte("retrieval_index")
)

// Store is the job and index-cache contract used by the server.
type Store interface {
	CreateJob(ctx context.Context, job *models.IngestJob) error
	GetJob(ctx context.Context, id string) (*models.IngestJob, error)
	ListJobs(ctx context.Context) ([]*models.IngestJob, error)
	// SetStep moves the job to running and records the step.
	SetStep(ctx context.Context, id, step string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, message string) error
	// PruneFinished deletes terminal jobs last updated before cutoff.
	PruneFinished(ctx context.Context, cutoff time.Time) (int, error)

	PutIndex(ctx context.Context, key string, data []byte) error
	// GetIndex returns ErrNotFound on a cache miss.
	GetIndex(ctx context.Context, key string) ([]byte, error)
	DeleteIndex(ctx context.Context, key string) error

	Close() error
}

// BboltStore implements Store.
type BboltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*BboltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create job store directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketJobs, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BboltStore{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob stores a new queued job. Timestamps are filled in if zero.
func (s *BboltStore) CreateJob(_ context.Context, job *models.IngestJob) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobQueued
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		if b.Get([]byte(job.ID)) != nil {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		return b.Put([]byte(job.ID), data)
	})
}

// GetJob returns ErrNotFound for unknown ids.
func (s *BboltStore) GetJob(_ context.Context, id string) (*models.IngestJob, error) {
	var job *models.IngestJob
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		job = &models.IngestJob{}
		return json.Unmarshal(data, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns all jobs, newest first.
func (s *BboltStore) ListJobs(_ context.Context) ([]*models.IngestJob, error) {
	var jobs []*models.IngestJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var job models.IngestJob
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshal job: %w", err)
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// transition applies mutate and moves the job to next inside one transaction.
func (s *BboltStore) transition(id string, next models.JobStatus, mutate func(*models.IngestJob)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var job models.IngestJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		if job.Status.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, job.Status, ErrTerminal)
		}
		if !job.Status.CanTransition(next) {
			return fmt.Errorf("%s -> %s: %w", job.Status, next, ErrBadTransition)
		}

		job.Status = next
		if mutate != nil {
			mutate(&job)
		}
		job.UpdatedAt = s.now().UTC()

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		return b.Put([]byte(id), out)
	})
}

// SetStep implements Store.
func (s *BboltStore) SetStep(_ context.Context, id, step string) error {
	return s.transition(id, models.JobRunning, func(j *models.IngestJob) {
		j.CurrentStep = step
	})
}

// Complete implements Store.
func (s *BboltStore) Complete(_ context.Context, id string) error {
	return s.transition(id, models.JobCompleted, func(j *models.IngestJob) {
		j.CurrentStep = "Completed"
	})
}

// Fail implements Store.
func (s *BboltStore) Fail(_ context.Context, id, message string) error {
	return s.transition(id, models.JobFailed, func(j *models.IngestJob) {
		j.ErrorMessage = message
	})
}

// PruneFinished implements Store.
func (s *BboltStore) PruneFinished(_ context.Context, cutoff time.Time) (int, error) {
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var job models.IngestJob
			if err := json.Unmarshal(v, &job); err != nil {
				return nil // skip malformed entries
			}
			if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete job %s: %w", k, err)
			}
		}
		pruned = len(stale)
		return nil
	})
	return pruned, err
}

// PutIndex implements Store.
func (s *BboltStore) PutIndex(_ context.Context, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Put([]byte(key), data)
	})
}

// GetIndex implements Store. The returned slice is a copy.
func (s *BboltStore) GetIndex(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// DeleteIndex implements Store.
func (s *BboltStore) DeleteIndex(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Delete([]byte(key))
	})
}

var _ Store = (*BboltStore)(nil)
