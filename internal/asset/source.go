// Package asset fetches raw asset bytes by slash-separated path from a
// directory, a sqlite pack or postgres, and decodes the compressed
// container every streamed asset is stored in.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound       = errors.New("asset not found")
	ErrDigestMismatch = errors.New("asset digest mismatch")
)

// Source is anything the loader can pull asset bytes from.
// Fetch is called from loader worker goroutines.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Store is a Source that tools can also write to.
type Store interface {
	Source
	Put(ctx context.Context, path string, data []byte) error
}

// DirSource reads assets from a directory tree.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (d *DirSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.file(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (d *DirSource) Put(_ context.Context, path string, data []byte) error {
	file := d.file(path)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Walk calls fn with the slash path of every file under the root.
func (d *DirSource) Walk(fn func(path string) error) error {
	return filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

func (d *DirSource) file(path string) string {
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

// MemSource keeps assets in memory. Used by tools and tests.
type MemSource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemSource() *MemSource {
	return &MemSource{files: make(map[string][]byte)}
}

func (m *MemSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemSource) Put(_ context.Context, path string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.files[path] = buf
	m.mu.Unlock()
	return nil
}

func (m *MemSource) Delete(path string) {
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
}

// Paths returns every stored path in sorted order.
func (m *MemSource) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
