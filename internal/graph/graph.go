// Package graph builds a file and import graph of a cloned repository.
package graph

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/repofs"
)

// Node groups by file kind.
const (
	GroupOther  = 1
	GroupPython = 2
	GroupScript = 3
	GroupStyle  = 4
	GroupDoc    = 5
)

// maxScanBytes bounds how much of a file is read looking for imports.
const maxScanBytes = 1 << 20

var lockFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
}

var (
	pyImportRe = regexp.MustCompile(`(?m)^(?:from|import) ([\w.]+)`)
	jsImportRe = regexp.MustCompile(`from ['"]([^'"]+)['"]`)
)

// Group classifies a file name by extension.
func Group(name string) int {
	switch path.Ext(name) {
	case ".py":
		return GroupPython
	case ".ts", ".tsx", ".js", ".jsx":
		return GroupScript
	case ".css", ".scss":
		return GroupStyle
	case ".json", ".md":
		return GroupDoc
	default:
		return GroupOther
	}
}

// Build walks root and links files by their Python and relative JS/TS
// imports. Dotfiles and lock files are left out.
func Build(root string) (*models.Graph, error) {
	g := &models.Graph{Nodes: []models.GraphNode{}, Links: []models.GraphLink{}}
	var files []repofs.File

	err := repofs.Walk(root, func(f repofs.File) error {
		name := path.Base(f.Rel)
		if strings.HasPrefix(name, ".") || lockFiles[name] {
			return nil
		}
		g.Nodes = append(g.Nodes, models.GraphNode{ID: f.Rel, Name: name, Group: Group(name)})
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	seen := make(map[models.GraphLink]bool)
	link := func(src, dst string) {
		l := models.GraphLink{Source: src, Target: dst}
		if src == dst || seen[l] {
			return
		}
		seen[l] = true
		g.Links = append(g.Links, l)
	}

	for i, f := range files {
		group := g.Nodes[i].Group
		if group != GroupPython && group != GroupScript {
			continue
		}
		if f.Size > maxScanBytes {
			continue
		}
		data, err := os.ReadFile(f.Abs)
		if err != nil || repofs.IsBinary(data) {
			continue
		}
		src := string(data)

		if group == GroupPython {
			for _, m := range pyImportRe.FindAllStringSubmatch(src, -1) {
				if target, ok := resolvePython(g.Nodes, m[1]); ok {
					link(f.Rel, target)
				}
			}
			continue
		}
		for _, m := range jsImportRe.FindAllStringSubmatch(src, -1) {
			if !strings.HasPrefix(m[1], ".") {
				continue
			}
			if target, ok := resolveScript(g.Nodes, m[1]); ok {
				link(f.Rel, target)
			}
		}
	}
	return g, nil
}

// matchesPath reports whether id is rel or ends in "/"+rel.
func matchesPath(id, rel string) bool {
	return id == rel || strings.HasSuffix(id, "/"+rel)
}

// resolvePython maps a dotted module to a module file or package init.
func resolvePython(nodes []models.GraphNode, module string) (string, bool) {
	base := strings.ReplaceAll(module, ".", "/")
	file, pkg := base+".py", base+"/__init__.py"
	for _, n := range nodes {
		if matchesPath(n.ID, file) || matchesPath(n.ID, pkg) {
			return n.ID, true
		}
	}
	return "", false
}

// resolveScript matches a relative import by its last path element.
func resolveScript(nodes []models.GraphNode, spec string) (string, bool) {
	name := path.Base(spec)
	for _, n := range nodes {
		for _, ext := range []string{".ts", ".tsx", ".js"} {
			if matchesPath(n.ID, name+ext) {
				return n.ID, true
			}
		}
	}
	return "", false
}
