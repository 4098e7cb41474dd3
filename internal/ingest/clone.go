package ingest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// Cloner fetches a repository into dest.
type Cloner interface {
	Clone(ctx context.Context, repoURL, dest string) error
}

// GitCloner performs shallow clones with go-git.
type GitCloner struct{}

// Clone implements Cloner.
func (GitCloner) Clone(ctx context.Context, repoURL, dest string) error {
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		os.RemoveAll(dest)
		if ctx.Err() != nil {
			return fmt.Errorf("git clone timed out: %w", ctx.Err())
		}
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// repoName returns the last path element of a repository URL without ".git".
func repoName(repoURL string) string {
	p := repoURL
	if u, err := url.Parse(repoURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// cloneDir returns a fresh directory path under root. Every clone gets its
// own directory; directories are never reused.
func cloneDir(root, repoURL string) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate clone suffix: %w", err)
	}
	return filepath.Join(root, repoName(repoURL)+"_"+hex.EncodeToString(b[:])), nil
}
