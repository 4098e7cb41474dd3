// Package mermaid performs a lightweight syntax check of Mermaid diagram
// source. It does not lay diagrams out; it rejects the mistakes language
// models make most often (unknown diagram type, node IDs with spaces or
// punctuation) before anything tries to render them.
package mermaid

import (
	"fmt"
	"regexp"
	"strings"
)

// SyntaxError describes the first problem found in a diagram.
type SyntaxError struct {
	Line    int
	Token   string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Message, e.Token)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

var (
	labelRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}|"[^"]*"|\|[^|]*\|`)
	arrowRe = regexp.MustCompile(`<?(?:-{2,}|-\.+-|={2,})>?|&|;`)
	idRe    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	fileRe  = regexp.MustCompile(`[\[\(]([\w/.-]+\.\w+)[\]\)]`)
)

var keywords = map[string]bool{
	"graph": true, "flowchart": true, "subgraph": true, "end": true,
	"TD": true, "TB": true, "BT": true, "LR": true, "RL": true,
	"direction": true,
}

// directive lines carry styling or interaction rather than nodes.
var directives = []string{"style ", "classDef ", "class ", "click ", "linkStyle ", "direction "}

// Kind returns the diagram type declared on the first non-empty line.
func Kind(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		return strings.Fields(line)[0]
	}
	return ""
}

// Check validates source and returns a *SyntaxError for the first problem.
func Check(source string) error {
	lines := strings.Split(source, "\n")
	first := -1
	for i, l := range lines {
		if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "%%") {
			first = i
			break
		}
	}
	if first < 0 {
		return &SyntaxError{Line: 1, Message: "empty diagram"}
	}

	head := strings.TrimSpace(lines[first])
	switch {
	case strings.HasPrefix(head, "sequenceDiagram"):
		// Message lines have free-form text; only the header is checked.
		return nil
	case strings.HasPrefix(head, "graph ") || strings.HasPrefix(head, "flowchart ") ||
		head == "graph" || head == "flowchart":
	default:
		return &SyntaxError{Line: first + 1, Token: Kind(source), Message: "diagram must start with graph, flowchart or sequenceDiagram"}
	}

	for i := first + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "%%") || isDirective(line) {
			continue
		}
		stripped := labelRe.ReplaceAllString(line, " ")
		stripped = arrowRe.ReplaceAllString(stripped, " ")
		for _, tok := range strings.Fields(stripped) {
			if keywords[tok] {
				continue
			}
			if !idRe.MatchString(tok) {
				return &SyntaxError{Line: i + 1, Token: tok, Message: "node IDs must be alphanumeric or underscore"}
			}
		}
	}
	return nil
}

func isDirective(line string) bool {
	for _, d := range directives {
		if strings.HasPrefix(line, d) {
			return true
		}
	}
	return false
}

// FileLabels returns node labels that look like file paths, e.g. A[cmd/main.go].
func FileLabels(source string) []string {
	var out []string
	for _, m := range fileRe.FindAllStringSubmatch(source, -1) {
		out = append(out, m[1])
	}
	return out
}
