package render

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinRaw(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Raw)
	}
	return b.String()
}

func TestParse_SingleBlock(t *testing.T) {
	segs := Parse(`<file path="a/b.py">X</file>`)
	require.Len(t, segs, 3)

	assert.Equal(t, KindText, segs[0].Kind)
	assert.Equal(t, "", segs[0].Raw)
	assert.Equal(t, KindFilePatch, segs[1].Kind)
	assert.Equal(t, "a/b.py", segs[1].Path)
	assert.Equal(t, "X", segs[1].Content)
	assert.Equal(t, KindText, segs[2].Kind)
}

func TestParse_TrimsContentAndDefaultsPath(t *testing.T) {
	segs := Parse("Fix:\n<file>\n  body\n</file>\nDone")
	require.Len(t, segs, 3)
	assert.Equal(t, "Fix:\n", segs[0].Raw)
	assert.Equal(t, UnknownPath, segs[1].Path)
	assert.Equal(t, "body", segs[1].Content)
	assert.Equal(t, "\nDone", segs[2].Raw)
}

func TestParse_ExtraAttributes(t *testing.T) {
	segs := Parse(`<file lang="go" path="main.go" mode="w">package main</file>`)
	require.Len(t, segs, 3)
	assert.Equal(t, "main.go", segs[1].Path)
	assert.Equal(t, "package main", segs[1].Content)
}

func TestParse_AttributeValueContainingBracket(t *testing.T) {
	segs := Parse(`<file path="a>b.txt">x</file>`)
	require.Len(t, segs, 3)
	assert.Equal(t, "a>b.txt", segs[1].Path)
	assert.Equal(t, "x", segs[1].Content)
}

func TestParse_MalformedStaysText(t *testing.T) {
	inputs := []string{
		`<file path="a.go">never closed`,
		`<file path=a.go>unquoted</file>`,
		`<filex path="a.go">x</filex>`,
		`</file> stray close`,
	}
	for _, in := range inputs {
		segs := Parse(in)
		require.Len(t, segs, 1, in)
		assert.Equal(t, KindText, segs[0].Kind)
		assert.Equal(t, in, segs[0].Raw)
	}
}

func TestParse_NestedTagsDoNotNest(t *testing.T) {
	in := `<file path="a"><file path="b">x</file></file>`
	segs := Parse(in)
	require.Len(t, segs, 3)
	assert.Equal(t, "a", segs[1].Path)
	assert.Equal(t, `<file path="b">x`, segs[1].Content)
	assert.Equal(t, "</file>", segs[2].Raw)
	assert.Equal(t, in, joinRaw(segs))
}

func TestParse_Diagrams(t *testing.T) {
	in := "Overview\n```mermaid\ngraph TD\n  A --> B\n```\nthen\n```mermaid\nflowchart LR\n  X --> Y\n```"
	segs := Parse(in)

	kinds := make([]Kind, len(segs))
	for i, s := range segs {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []Kind{KindText, KindDiagram, KindText, KindDiagram}, kinds)
	assert.Equal(t, "graph TD\n  A --> B", segs[1].Source)
	assert.Equal(t, "flowchart LR\n  X --> Y", segs[3].Source)
	assert.Equal(t, in, joinRaw(segs))
}

func TestParse_OnlyExactMermaidFence(t *testing.T) {
	in := "```mermaidx\ngraph TD\nA-->B\n```\n```mermaid  \ngraph LR\nC-->D\n```"
	segs := Parse(in)

	var diagrams []string
	for _, s := range segs {
		if s.Kind == KindDiagram {
			diagrams = append(diagrams, s.Source)
		}
	}
	assert.Equal(t, []string{"graph LR\nC-->D"}, diagrams)
	assert.Equal(t, in, joinRaw(segs))
}

func TestParse_UnterminatedFenceIsText(t *testing.T) {
	in := "```mermaid\ngraph TD\nA-->B"
	segs := Parse(in)
	require.Len(t, segs, 1)
	assert.Equal(t, KindText, segs[0].Kind)
}

func TestPatches(t *testing.T) {
	segs := Parse(`a<file path="1">x</file>b<file path="2">y</file>c`)
	p := Patches(segs)
	require.Len(t, p, 2)
	assert.Equal(t, "1", p[0].Path)
	assert.Equal(t, "2", p[1].Path)
}

// plainText is text that can never form a tag or a fence.
type plainText string

const plainAlphabet = "abcxyz019 \n\t.,:;/\"'=>-_#*"

func (plainText) Generate(r *rand.Rand, size int) reflect.Value {
	n := r.Intn(size + 1)
	b := make([]byte, n)
	for i := range b {
		b[i] = plainAlphabet[r.Intn(len(plainAlphabet))]
	}
	return reflect.ValueOf(plainText(b))
}

// message is a generated response with a known number of file blocks.
type message struct {
	text   string
	blocks int
	paths  []string
	bodies []string
}

func (message) Generate(r *rand.Rand, size int) reflect.Value {
	gen := func() string {
		return string(plainText("").Generate(r, size).Interface().(plainText))
	}
	var m message
	var b strings.Builder
	b.WriteString(gen())
	m.blocks = r.Intn(6)
	for i := 0; i < m.blocks; i++ {
		path := strings.NewReplacer("\"", "", "\n", "", "\t", "", " ", "").Replace(gen())
		body := gen()
		m.paths = append(m.paths, path)
		m.bodies = append(m.bodies, body)
		b.WriteString(`<file path="` + path + `">` + body + `</file>`)
		b.WriteString(gen())
	}
	m.text = b.String()
	return reflect.ValueOf(m)
}

func TestSplitFileBlocks_Properties(t *testing.T) {
	prop := func(m message) bool {
		parts := SplitFileBlocks(m.text)
		if len(parts) != 2*m.blocks+1 {
			return false
		}
		var b strings.Builder
		for i, p := range parts {
			if p.IsBlock != (i%2 == 1) {
				return false
			}
			b.WriteString(p.Raw)
		}
		return b.String() == m.text
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 500}))
}

func TestParse_Properties(t *testing.T) {
	prop := func(m message) bool {
		segs := Parse(m.text)
		if len(segs) != 2*m.blocks+1 || joinRaw(segs) != m.text {
			return false
		}
		for i := 0; i < m.blocks; i++ {
			s := segs[2*i+1]
			want := m.paths[i]
			if want == "" {
				want = UnknownPath
			}
			if s.Kind != KindFilePatch || s.Path != want || s.Content != strings.TrimSpace(m.bodies[i]) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 500}))
}

func TestParse_PlainTextIsOneSegment(t *testing.T) {
	prop := func(s plainText) bool {
		segs := Parse(string(s))
		return len(segs) == 1 && segs[0].Kind == KindText && segs[0].Raw == string(s)
	}
	require.NoError(t, quick.Check(prop, nil))
}

func FuzzParse(f *testing.F) {
	f.Add(`<file path="a/b.py">X</file>`)
	f.Add("text ```mermaid\ngraph TD\nA-->B\n``` more")
	f.Add(`<file path="a"><file path="b">x</file></file>`)
	f.Add("<file>")
	f.Fuzz(func(t *testing.T, in string) {
		segs := Parse(in)
		if got := joinRaw(segs); got != in {
			t.Fatalf("raw concatenation %q != input %q", got, in)
		}
		parts := SplitFileBlocks(in)
		if len(parts)%2 != 1 {
			t.Fatalf("got %d parts, want odd", len(parts))
		}
		for _, s := range segs {
			if s.Kind == KindFilePatch && s.Path == "" {
				t.Fatalf("file patch without path in %q", in)
			}
		}
	})
}
