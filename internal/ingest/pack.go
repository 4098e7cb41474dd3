package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/repofs"
)

// ErrEmptyPack is returned when a repository has no packable files.
var ErrEmptyPack = errors.New("packing produced no output")

// Pack renders every text file under root as a <file path="..."> block in
// lexical path order. Files larger than maxFileBytes are skipped.
func Pack(root string, maxFileBytes int64) (string, int, error) {
	var body strings.Builder
	count := 0
	err := repofs.Walk(root, func(f repofs.File) error {
		if maxFileBytes > 0 && f.Size > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(f.Abs)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Rel, err)
		}
		if repofs.IsBinary(data) {
			return nil
		}
		fmt.Fprintf(&body, "<file path=\"%s\">\n%s", f.Rel, data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			body.WriteByte('\n')
		}
		body.WriteString("</file>\n\n")
		count++
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("pack repository: %w", err)
	}
	if count == 0 {
		return "", 0, ErrEmptyPack
	}
	header := fmt.Sprintf("This file is a packed representation of the repository.\nFiles: %d\n\n", count)
	return header + body.String(), count, nil
}

// BuildIndex lists relative file paths, one per line, stopping at maxFiles.
func BuildIndex(root string, maxFiles int) (string, error) {
	var entries []string
	err := repofs.Walk(root, func(f repofs.File) error {
		entries = append(entries, f.Rel)
		if maxFiles > 0 && len(entries) >= maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("build index: %w", err)
	}
	return strings.Join(entries, "\n"), nil
}
