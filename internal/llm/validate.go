package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/mermaid"
)

const fenceOpen = "```mermaid"

var contextPathRe = regexp.MustCompile(`path="([^"]+)"`)

// ContextPaths returns the set of path="..." values in a context string.
func ContextPaths(context string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range contextPathRe.FindAllStringSubmatch(context, -1) {
		out[m[1]] = true
	}
	return out
}

// ValidateDiagrams checks every mermaid block in text. A block with invalid
// syntax gets a %% comment inside its fence. A block whose file-like labels
// are not among the context's paths gets a warning line after its fence.
// Text without mermaid blocks is returned unchanged.
func ValidateDiagrams(text, context string) string {
	if !strings.Contains(text, fenceOpen) {
		return text
	}
	known := ContextPaths(context)

	blocks := strings.Split(text, fenceOpen)
	out := []string{blocks[0]}
	for _, block := range blocks[1:] {
		source, rest, closed := strings.Cut(block, "```")
		if !closed {
			out = append(out, block)
			continue
		}

		if err := mermaid.Check(source); err != nil {
			warning := fmt.Sprintf("%%%% Mermaid validation failed: %v. Use graph TD or graph LR with single-word alphanumeric node IDs.\n", err)
			if !strings.HasSuffix(source, "\n") {
				source += "\n"
			}
			out = append(out, source+warning+"```"+rest)
			continue
		}

		var missing []string
		for _, label := range mermaid.FileLabels(source) {
			if !known[label] {
				missing = append(missing, label)
			}
		}
		if len(missing) > 0 {
			warning := fmt.Sprintf("\n\n> Warning: diagram references files not found in context: %s.\n", strings.Join(missing, ", "))
			out = append(out, source+"```"+warning+rest)
			continue
		}
		out = append(out, source+"```"+rest)
	}
	return strings.Join(out, fenceOpen)
}
