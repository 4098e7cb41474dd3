package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/mermaid"
)

// DiagramEngine renders one diagram. key is unique per Renderer and stable
// for the diagram's position in the output.
type DiagramEngine interface {
	RenderDiagram(ctx context.Context, key, source string) (string, error)
}

// DiagramError is an engine failure for a single diagram.
type DiagramError struct {
	Key string
	Err error
}

func (e *DiagramError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Key, e.Err)
}

func (e *DiagramError) Unwrap() error { return e.Err }

// LintEngine checks diagram syntax and prints the source back.
type LintEngine struct{}

// RenderDiagram implements DiagramEngine.
func (LintEngine) RenderDiagram(ctx context.Context, key, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := mermaid.Check(source); err != nil {
		return "", err
	}
	return source, nil
}

// CLIEngine renders diagrams to SVG files with the mermaid CLI (mmdc).
type CLIEngine struct {
	// Path is the mmdc executable. Empty means "mmdc" on PATH.
	Path string
	// Dir receives <key>.mmd and <key>.svg.
	Dir string
}

// RenderDiagram implements DiagramEngine.
func (e CLIEngine) RenderDiagram(ctx context.Context, key, source string) (string, error) {
	bin := e.Path
	if bin == "" {
		bin = "mmdc"
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagram dir: %w", err)
	}

	in := filepath.Join(e.Dir, key+".mmd")
	out := filepath.Join(e.Dir, key+".svg")
	if err := os.WriteFile(in, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("write diagram source: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "-i", in, "-o", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return "", fmt.Errorf("mmdc: %w", err)
		}
		return "", fmt.Errorf("mmdc: %w: %s", err, msg)
	}
	return "diagram written to " + out, nil
}
