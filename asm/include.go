package asm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Includer opens the target of an .include directive. from is the name of
// the including file; the returned name identifies the opened source in
// error messages and recursion checks.
type Includer interface {
	Include(from, path string) (io.ReadCloser, string, error)
}

// FileIncluder reads includes from the file system. Relative paths are
// taken from the including file's directory, or from Root when the source
// has no file name.
type FileIncluder struct {
	Root string
}

func (fi FileIncluder) Include(from, path string) (io.ReadCloser, string, error) {
	if !filepath.IsAbs(path) {
		dir := fi.Root
		if from != "" {
			dir = filepath.Dir(from)
		}
		path = filepath.Join(dir, path)
	}
	path = filepath.Clean(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// MapIncluder serves includes from memory, keyed by path.
type MapIncluder map[string]string

func (m MapIncluder) Include(from, path string) (io.ReadCloser, string, error) {
	src, ok := m[path]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(src)), path, nil
}
