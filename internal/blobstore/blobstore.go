// Package blobstore stores packed repository contexts by their SHA-256.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrBlobNotFound is returned when a requested blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrHashMismatch is returned when stored data does not hash to the given key.
var ErrHashMismatch = errors.New("blob hash mismatch")

// Store is content-addressed storage for large text payloads.
type Store interface {
	Has(ctx context.Context, hash string) (bool, error)
	// Get returns ErrBlobNotFound if the blob does not exist.
	Get(ctx context.Context, hash string) (io.ReadCloser, error)
	// Put stores r under hash, verifying the hash. Storing an existing blob is a no-op.
	Put(ctx context.Context, hash string, r io.Reader) error
	Delete(ctx context.Context, hash string) error
	ListHashes(ctx context.Context) ([]string, error)
}

var validHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutBytes stores data and returns its hash.
func PutBytes(ctx context.Context, s Store, data []byte) (string, error) {
	hash := Hash(data)
	if err := s.Put(ctx, hash, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBytes reads a whole blob.
func GetBytes(ctx context.Context, s Store, hash string) ([]byte, error) {
	rc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	return data, nil
}

// FSStore keeps blobs under root/<first two hex>/<rest>.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

// Has implements Store.
func (s *FSStore) Has(_ context.Context, hash string) (bool, error) {
	if !validHash.MatchString(hash) {
		return false, nil
	}
	_, err := os.Stat(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %s: %w", hash, err)
	}
	return true, nil
}

// Get implements Store.
func (s *FSStore) Get(_ context.Context, hash string) (io.ReadCloser, error) {
	if !validHash.MatchString(hash) {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(s.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", hash, err)
	}
	return f, nil
}

// Put writes to a temp file, checks the hash, then renames into place.
func (s *FSStore) Put(_ context.Context, hash string, r io.Reader) error {
	if !validHash.MatchString(hash) {
		return fmt.Errorf("invalid blob hash: %q", hash)
	}
	dst := s.path(hash)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write blob data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != hash {
		os.Remove(tmpPath)
		return fmt.Errorf("expected %s, got %s: %w", hash, got, ErrHashMismatch)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

// Delete implements Store. Missing blobs are not an error.
func (s *FSStore) Delete(_ context.Context, hash string) error {
	if !validHash.MatchString(hash) {
		return nil
	}
	if err := os.Remove(s.path(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", hash, err)
	}
	return nil
}

// ListHashes walks the tree and rebuilds hashes from prefix/rest paths.
func (s *FSStore) ListHashes(_ context.Context) ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) == 2 && validHash.MatchString(parts[0]+parts[1]) {
			hashes = append(hashes, parts[0]+parts[1])
		}
		return nil
	})
	return hashes, err
}

var _ Store = (*FSStore)(nil)
