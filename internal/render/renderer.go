package render

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentDiagrams = 4

var (
	patchHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	patchBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	diagramBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("13")).Padding(0, 1)
	errorBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Foreground(lipgloss.Color("9")).Padding(0, 1)
)

// Patch is a numbered file patch from a rendered message.
type Patch struct {
	Number  int
	Path    string
	Content string
}

// DiagramResult is the outcome of one diagram render.
type DiagramResult struct {
	Key    string
	Output string
	Err    *DiagramError
}

// Rendered is a message ready for the terminal.
type Rendered struct {
	Output   string
	Patches  []Patch
	Diagrams []DiagramResult
}

// Renderer renders parsed messages. Diagram keys come from a counter that
// lives as long as the Renderer, so keys never repeat within it.
type Renderer struct {
	engine   DiagramEngine
	markdown func(string) (string, error)
	style    string
	width    int
	counter  atomic.Uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the word-wrap width for markdown.
func WithWidth(w int) Option {
	return func(r *Renderer) { r.width = w }
}

// WithStyle selects a glamour style ("dark", "light", "notty", "auto").
func WithStyle(style string) Option {
	return func(r *Renderer) { r.style = style }
}

// WithPlainText passes text segments through without markdown styling.
func WithPlainText() Option {
	return func(r *Renderer) {
		r.markdown = func(s string) (string, error) { return s, nil }
	}
}

// New creates a Renderer. A nil engine uses LintEngine.
func New(engine DiagramEngine, opts ...Option) (*Renderer, error) {
	if engine == nil {
		engine = LintEngine{}
	}
	r := &Renderer{engine: engine, style: "dark", width: 100}
	for _, opt := range opts {
		opt(r)
	}
	if r.markdown == nil {
		styleOpt := glamour.WithStandardStyle(r.style)
		if r.style == "auto" {
			styleOpt = glamour.WithAutoStyle()
		}
		tr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.width))
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		r.markdown = tr.Render
	}
	return r, nil
}

func (r *Renderer) nextKey() string {
	return fmt.Sprintf("diagram-%d", r.counter.Add(1))
}

// RenderMessage parses and renders content.
func (r *Renderer) RenderMessage(ctx context.Context, content string) *Rendered {
	return r.Render(ctx, Parse(content))
}

// Render renders segments in order. Diagrams render concurrently; a failed
// diagram becomes an inline error block and does not affect its neighbours.
func (r *Renderer) Render(ctx context.Context, segs []Segment) *Rendered {
	out := &Rendered{}

	// Keys are handed out in document order before any render starts.
	diagramIdx := make(map[int]int)
	for i, s := range segs {
		if s.Kind == KindDiagram {
			diagramIdx[i] = len(out.Diagrams)
			out.Diagrams = append(out.Diagrams, DiagramResult{Key: r.nextKey()})
		}
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentDiagrams)
	for i, s := range segs {
		if s.Kind != KindDiagram {
			continue
		}
		res := &out.Diagrams[diagramIdx[i]]
		source := s.Source
		g.Go(func() error {
			text, err := r.engine.RenderDiagram(ctx, res.Key, source)
			if err != nil {
				res.Err = &DiagramError{Key: res.Key, Err: err}
				return nil
			}
			res.Output = text
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for i, s := range segs {
		switch s.Kind {
		case KindText:
			if strings.TrimSpace(s.Raw) == "" {
				continue
			}
			text, err := r.markdown(s.Raw)
			if err != nil {
				text = s.Raw
			}
			b.WriteString(text)
		case KindFilePatch:
			p := Patch{Number: len(out.Patches) + 1, Path: s.Path, Content: s.Content}
			out.Patches = append(out.Patches, p)
			b.WriteString(patchHeader.Render(fmt.Sprintf("[%d] %s", p.Number, p.Path)))
			b.WriteString("\n")
			b.WriteString(patchBox.Render(p.Content))
			b.WriteString("\n")
		case KindDiagram:
			res := out.Diagrams[diagramIdx[i]]
			if res.Err != nil {
				b.WriteString(errorBox.Render(fmt.Sprintf("%s failed to render: %v", res.Key, res.Err.Err)))
			} else {
				b.WriteString(diagramBox.Render(res.Key + "\n" + res.Output))
			}
			b.WriteString("\n")
		}
	}
	out.Output = b.String()
	return out
}
