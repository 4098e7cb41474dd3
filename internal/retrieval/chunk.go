package retrieval

import (
	"fmt"
	"os"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/repofs"
)

// Chunk is a window of lines from one file. Lines are 1-based and inclusive.
type Chunk struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// window is a half-open [start, end) range of 0-based line indexes.
type window struct{ start, end int }

// windows splits total lines into windows of size lines, each overlapping the
// previous by overlap lines.
func windows(total, size, overlap int) []window {
	if size <= 0 {
		size = 200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	var out []window
	for start := 0; start < total; {
		end := min(start+size, total)
		out = append(out, window{start, end})
		if end == total {
			break
		}
		start = end - overlap
	}
	return out
}

// splitLines keeps line terminators so windows rejoin to the original text.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ChunkText chunks one file's text. Whitespace-only windows are dropped.
func ChunkText(path, text string, size, overlap int) []Chunk {
	lines := splitLines(text)
	var out []Chunk
	for _, w := range windows(len(lines), size, overlap) {
		body := strings.TrimSpace(strings.Join(lines[w.start:w.end], ""))
		if body == "" {
			continue
		}
		out = append(out, Chunk{Path: path, StartLine: w.start + 1, EndLine: w.end, Text: body})
	}
	return out
}

// BuildChunks chunks every text file under root that is at most maxFileBytes.
func BuildChunks(root string, size, overlap int, maxFileBytes int64) ([]Chunk, error) {
	var chunks []Chunk
	err := repofs.Walk(root, func(f repofs.File) error {
		if maxFileBytes > 0 && f.Size > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(f.Abs)
		if err != nil {
			return nil
		}
		if repofs.IsBinary(data) {
			return nil
		}
		chunks = append(chunks, ChunkText(f.Rel, string(data), size, overlap)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build chunks: %w", err)
	}
	return chunks, nil
}
