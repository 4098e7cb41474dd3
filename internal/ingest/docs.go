package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxDocsBytes = 5 << 20

// DocsFetcher turns a documentation page into readable text.
type DocsFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPDocsFetcher downloads a single page and extracts its text.
type HTTPDocsFetcher struct {
	Client *http.Client
}

// NewHTTPDocsFetcher creates a fetcher with a request timeout.
func NewHTTPDocsFetcher(timeout time.Duration) *HTTPDocsFetcher {
	return &HTTPDocsFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements DocsFetcher.
func (f *HTTPDocsFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ragchat-server/1.0")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch docs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch docs: HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxDocsBytes)
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read docs: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return ExtractText(body)
}

var skipElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Nav: true, atom.Footer: true, atom.Svg: true, atom.Head: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Li: true, atom.Tr: true, atom.Br: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// ExtractText parses HTML and returns its visible text. Headings are kept as
// markdown headings and <pre> blocks keep their whitespace.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		if n.Type == html.ElementNode {
			if skipElements[n.DataAtom] {
				return
			}
			if lvl, ok := headingLevel[n.DataAtom]; ok {
				b.WriteString("\n\n" + strings.Repeat("#", lvl) + " ")
			} else if blockElements[n.DataAtom] {
				b.WriteString("\n")
			}
			if n.DataAtom == atom.Pre {
				pre = true
			}
		}
		if n.Type == html.TextNode {
			if pre {
				b.WriteString(n.Data)
			} else if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				b.WriteString(t + " ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(doc, false)

	return collapseBlankLines(b.String()), nil
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
