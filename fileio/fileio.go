// Package fileio is the file collaborator of a diagram: plain reads and
// writes behind small interfaces, an in-memory variant, and a debounced
// change watcher.
package fileio

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DiagramSuffix is the extension of diagram files.
const DiagramSuffix = ".seq.json"

// Reader reads whole files.
type Reader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Writer replaces whole files.
type Writer interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// FileSystem is both halves of the file collaborator.
type FileSystem interface {
	Reader
	Writer
}

// OS reads and writes the local file system. Writes go through a temporary
// file in the same directory and a rename, so readers never observe a
// partial diagram.
type OS struct{}

func (OS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (OS) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Memory is a FileSystem held in a map. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns a Memory seeded with a copy of files.
func NewMemory(files map[string][]byte) *Memory {
	m := &Memory{files: make(map[string][]byte, len(files))}
	for k, v := range files {
		m.files[k] = append([]byte(nil), v...)
	}
	return m
}

func (m *Memory) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

// Paths returns every stored path in ascending order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DisplayName returns the file name of path without its directory or the
// diagram suffix.
func DisplayName(path string) string {
	base := filepath.Base(path)
	if trimmed := strings.TrimSuffix(base, DiagramSuffix); trimmed != "" {
		return trimmed
	}
	return base
}
