package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
)

// ContentRefs lists the packed-content hashes still referenced by ingestions.
type ContentRefs interface {
	ContentHashes(ctx context.Context) (map[string]bool, error)
}

// JobPruner removes finished ingest jobs.
type JobPruner interface {
	PruneFinished(ctx context.Context, cutoff time.Time) (int, error)
}

// CloneRefs lists the clone directories still referenced by ingestions.
type CloneRefs interface {
	LocalPaths(ctx context.Context) (map[string]bool, error)
}

// DefaultCloneGrace keeps young clone directories, which may belong to an
// ingestion that has not been saved yet.
const DefaultCloneGrace = time.Hour

// PruneClones removes directories under reposDir that no ingestion references
// and that are older than grace.
func PruneClones(ctx context.Context, refs CloneRefs, reposDir string, grace time.Duration, logger *slog.Logger) (int, error) {
	referenced, err := refs.LocalPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("get referenced clones: %w", err)
	}
	abs, err := filepath.Abs(reposDir)
	if err != nil {
		return 0, fmt.Errorf("resolve repos dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list clones: %w", err)
	}

	cutoff := time.Now().Add(-grace)
	pruned := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(abs, e.Name())
		if referenced[dir] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("gc: failed to remove clone", "path", dir, "error", err)
			continue
		}
		pruned++
	}
	return pruned, nil
}

// GarbageCollect removes packed-content blobs no ingestion references.
func GarbageCollect(ctx context.Context, refs ContentRefs, blobs blobstore.Store, logger *slog.Logger) (*api.GCResult, error) {
	result := &api.GCResult{}

	referenced, err := refs.ContentHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("get referenced hashes: %w", err)
	}

	all, err := blobs.ListHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blob hashes: %w", err)
	}
	result.BlobsScanned = len(all)

	for _, hash := range all {
		if referenced[hash] {
			continue
		}
		if err := blobs.Delete(ctx, hash); err != nil {
			logger.Warn("gc: failed to delete blob", "hash", hash, "error", err)
			continue
		}
		result.BlobsDeleted++
	}
	return result, nil
}

// Janitor runs maintenance: blob garbage collection and job pruning.
type Janitor struct {
	refs      ContentRefs
	blobs     blobstore.Store
	jobs      JobPruner
	retention time.Duration
	logger    *slog.Logger

	clones     CloneRefs
	reposDir   string
	cloneGrace time.Duration

	mu sync.Mutex // one pass at a time
}

// NewJanitor creates a Janitor. A zero retention keeps every job.
func NewJanitor(refs ContentRefs, blobs blobstore.Store, jobs JobPruner, retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{refs: refs, blobs: blobs, jobs: jobs, retention: retention, logger: logger}
}

// WithClones makes every pass also prune unreferenced clones under reposDir.
func (j *Janitor) WithClones(refs CloneRefs, reposDir string, grace time.Duration) *Janitor {
	j.clones = refs
	j.reposDir = reposDir
	j.cloneGrace = grace
	return j
}

// Run performs one maintenance pass.
func (j *Janitor) Run(ctx context.Context) (*api.GCResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	result, err := GarbageCollect(ctx, j.refs, j.blobs, j.logger)
	if err != nil {
		return nil, err
	}
	if j.jobs != nil && j.retention > 0 {
		n, err := j.jobs.PruneFinished(ctx, time.Now().Add(-j.retention))
		if err != nil {
			return nil, fmt.Errorf("prune jobs: %w", err)
		}
		result.JobsPruned = n
	}
	if j.clones != nil && j.reposDir != "" {
		n, err := PruneClones(ctx, j.clones, j.reposDir, j.cloneGrace, j.logger)
		if err != nil {
			return nil, err
		}
		result.ClonesPruned = n
	}

	j.logger.Info("gc complete",
		"scanned", result.BlobsScanned,
		"deleted", result.BlobsDeleted,
		"jobs_pruned", result.JobsPruned,
		"clones_pruned", result.ClonesPruned,
	)
	return result, nil
}

// Start runs a pass every interval until ctx is done.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
					j.logger.Warn("scheduled gc failed", "error", err)
				}
			}
		}
	}()
}
