package editor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const contextLines = 3

type opKind byte

const (
	opEqual  opKind = ' '
	opDelete opKind = '-'
	opInsert opKind = '+'
)

type lineOp struct {
	kind opKind
	text string
	// old and new are 1-based line numbers before and after the change.
	old, new int
}

// Diff compares root/rel with content and returns a unified diff. A missing
// file is treated as empty. Identical content yields "".
func Diff(root, rel, content string) (string, error) {
	full, err := SafeJoin(root, rel)
	if err != nil {
		return "", err
	}
	before, err := os.ReadFile(full)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return Unified(rel, string(before), content), nil
}

// Unified renders a line diff of before and after with three lines of context.
func Unified(name, before, after string) string {
	if before == after {
		return ""
	}
	ops := lineOps(before, after)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", name, name)
	for _, h := range hunks(ops) {
		writeHunk(&b, ops[h[0]:h[1]])
	}
	return b.String()
}

func lineOps(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var ops []lineOp
	oldN, newN := 1, 1
	for _, d := range diffs {
		for _, line := range splitKeep(d.Text) {
			op := lineOp{text: line, old: oldN, new: newN}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				op.kind = opEqual
				oldN++
				newN++
			case diffmatchpatch.DiffDelete:
				op.kind = opDelete
				oldN++
			case diffmatchpatch.DiffInsert:
				op.kind = opInsert
				newN++
			}
			ops = append(ops, op)
		}
	}
	return ops
}

// splitKeep splits text into lines, keeping terminators.
func splitKeep(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// hunks returns [start, end) ranges of ops that contain changes plus their
// context, merging ranges whose context overlaps.
func hunks(ops []lineOp) [][2]int {
	var out [][2]int
	for i, op := range ops {
		if op.kind == opEqual {
			continue
		}
		start := max(0, i-contextLines)
		end := min(len(ops), i+contextLines+1)
		if n := len(out); n > 0 && start <= out[n-1][1] {
			out[n-1][1] = max(out[n-1][1], end)
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func writeHunk(b *strings.Builder, ops []lineOp) {
	oldStart, newStart := ops[0].old, ops[0].new
	var oldLen, newLen int
	for _, op := range ops {
		if op.kind != opInsert {
			oldLen++
		}
		if op.kind != opDelete {
			newLen++
		}
	}
	if oldLen == 0 {
		oldStart--
	}
	if newLen == 0 {
		newStart--
	}
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldLen, newStart, newLen)
	for _, op := range ops {
		b.WriteByte(byte(op.kind))
		b.WriteString(op.text)
		if !strings.HasSuffix(op.text, "\n") {
			b.WriteString("\n\\ No newline at end of file\n")
		}
	}
}
