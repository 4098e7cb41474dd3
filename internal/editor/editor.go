// Package editor writes proposed file changes into a cloned repository,
// previews them as diffs and runs validation commands.
package editor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for paths that are empty, absolute or leave the
// repository root.
var ErrPathEscape = errors.New("path escapes repository")

// SafeJoin resolves rel under root. The check holds after symlinks are
// followed, so a link inside the clone cannot point a read or write outside it.
func SafeJoin(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathEscape)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%w: %s is absolute", ErrPathEscape, rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	full := filepath.Join(absRoot, filepath.FromSlash(rel))
	back, err := filepath.Rel(absRoot, full)
	if err != nil || back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}

	realRoot, err := resolveExisting(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realFull, err := resolveExisting(full)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPathEscape, rel, err)
	}
	if !within(realRoot, realFull) {
		return "", fmt.Errorf("%w: %s resolves outside the repository", ErrPathEscape, rel)
	}
	return full, nil
}

// resolveExisting follows symlinks in the longest existing prefix of path and
// re-attaches the missing suffix. A dangling link is an error: writing
// through it would create its target.
func resolveExisting(path string) (string, error) {
	current := path
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if fi, lerr := os.Lstat(current); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("dangling symlink %s", current)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Apply overwrites root/rel with content, creating parent directories.
func Apply(root, rel, content string) error {
	full, err := SafeJoin(root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
