// Package render turns a model response into terminal output.
//
// Parsing is a pure two-pass scan. The grammar is:
//
//	message  := text (fileblk text)*
//	fileblk  := "<file" attrs ">" body "</file>"
//	attrs    := (ws name "=" '"' value '"')*
//	body     := any text not containing "</file>"
//
// Bodies match non-greedily and do not nest. Anything that does not match
// fileblk is text. Each text part is then scanned for fenced mermaid blocks,
// which become diagram segments. Concatenating Raw over the result of Parse
// always reproduces the input.
package render

import (
	"regexp"
	"strings"
)

// Kind identifies what a Segment holds.
type Kind int

const (
	KindText Kind = iota
	KindFilePatch
	KindDiagram
)

func (k Kind) String() string {
	switch k {
	case KindFilePatch:
		return "file"
	case KindDiagram:
		return "diagram"
	default:
		return "text"
	}
}

// UnknownPath is used for file blocks without a path attribute.
const UnknownPath = "unknown"

// Segment is one piece of a parsed message.
type Segment struct {
	Kind Kind
	// Raw is the exact input text this segment was parsed from.
	Raw string

	// Path and Content are set for KindFilePatch.
	Path    string
	Content string

	// Source is set for KindDiagram.
	Source string
}

// Text returns the markdown of a text segment.
func (s Segment) Text() string { return s.Raw }

// Part is one element of the first pass: either text or a whole file block.
type Part struct {
	Raw     string
	IsBlock bool
}

var (
	fileBlockRe = regexp.MustCompile(`(?s)<file(\s+[A-Za-z_][\w-]*="[^"]*")*\s*>(.*?)</file>`)
	pathAttrRe  = regexp.MustCompile(`\spath="([^"]*)"`)
	mermaidRe   = regexp.MustCompile("(?s)```mermaid[ \\t]*\\n(.*?)```")
)

// SplitFileBlocks splits content into alternating text and file-block parts.
// N blocks yield exactly 2N+1 parts starting and ending with text; text parts
// may be empty.
func SplitFileBlocks(content string) []Part {
	locs := fileBlockRe.FindAllStringIndex(content, -1)
	parts := make([]Part, 0, 2*len(locs)+1)
	prev := 0
	for _, loc := range locs {
		parts = append(parts, Part{Raw: content[prev:loc[0]]})
		parts = append(parts, Part{Raw: content[loc[0]:loc[1]], IsBlock: true})
		prev = loc[1]
	}
	return append(parts, Part{Raw: content[prev:]})
}

// Parse segments a message. Messages without diagrams produce exactly the
// parts of SplitFileBlocks, in order.
func Parse(content string) []Segment {
	var out []Segment
	for _, p := range SplitFileBlocks(content) {
		if p.IsBlock {
			out = append(out, parseFileBlock(p.Raw))
			continue
		}
		out = append(out, splitDiagrams(p.Raw)...)
	}
	return out
}

func parseFileBlock(raw string) Segment {
	loc := fileBlockRe.FindStringSubmatchIndex(raw)
	open := raw[:loc[4]]

	path := UnknownPath
	if pm := pathAttrRe.FindStringSubmatch(open); pm != nil && pm[1] != "" {
		path = pm[1]
	}
	return Segment{
		Kind:    KindFilePatch,
		Raw:     raw,
		Path:    path,
		Content: strings.TrimSpace(raw[loc[4]:loc[5]]),
	}
}

// splitDiagrams returns text unchanged as a single segment unless it holds at
// least one complete mermaid fence. Empty text between fences is dropped.
func splitDiagrams(text string) []Segment {
	locs := mermaidRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []Segment{{Kind: KindText, Raw: text}}
	}

	var out []Segment
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			out = append(out, Segment{Kind: KindText, Raw: text[prev:loc[0]]})
		}
		out = append(out, Segment{
			Kind:   KindDiagram,
			Raw:    text[loc[0]:loc[1]],
			Source: strings.TrimSpace(text[loc[2]:loc[3]]),
		})
		prev = loc[1]
	}
	if prev < len(text) {
		out = append(out, Segment{Kind: KindText, Raw: text[prev:]})
	}
	return out
}

// Patches returns the file-patch segments of segs in order.
func Patches(segs []Segment) []Segment {
	var out []Segment
	for _, s := range segs {
		if s.Kind == KindFilePatch {
			out = append(out, s)
		}
	}
	return out
}
