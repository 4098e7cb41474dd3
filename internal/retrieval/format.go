package retrieval

import (
	"fmt"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Format renders chunks as <FILE> blocks separated by blank lines.
func Format(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("<FILE path=\"%s\" lines=\"%d-%d\">\n%s\n</FILE>", c.Path, c.StartLine, c.EndLine, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Citations lists where each chunk came from.
func Citations(chunks []Chunk) []models.Citation {
	out := make([]models.Citation, len(chunks))
	for i, c := range chunks {
		out[i] = models.Citation{Path: c.Path, StartLine: c.StartLine, EndLine: c.EndLine}
	}
	return out
}
