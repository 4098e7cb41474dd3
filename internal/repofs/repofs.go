// Package repofs walks a cloned repository the same way for every consumer:
// packing, indexing, chunking and graph building all see the same files.
package repofs

import (
	"bytes"
	"io/fs"
	"path/filepath"
	"unicode/utf8"
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// SkipDir reports whether a directory with this name is never descended into.
func SkipDir(name string) bool {
	return skipDirs[name]
}

// sniffLen matches the prefix git inspects when guessing binary content.
const sniffLen = 8000

// IsBinary reports whether data looks like a binary file.
func IsBinary(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	return !utf8.Valid(trimPartialRune(head))
}

// trimPartialRune drops a rune cut off by the sniff window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// File is one regular file found by Walk.
type File struct {
	// Rel uses forward slashes regardless of platform.
	Rel  string
	Abs  string
	Size int64
}

// Walk calls fn for every regular file under root in lexical order, skipping
// SkipDir directories and symlinks. fn may return fs.SkipAll to stop.
func Walk(root string, fn func(File) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(File{Rel: filepath.ToSlash(rel), Abs: path, Size: info.Size()})
	})
	if err == fs.SkipAll {
		return nil
	}
	return err
}
