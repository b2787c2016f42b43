package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compile time check to ensure Local satisfies the Archive interface.
var _ Archive = (*Local)(nil)

// Local is an Archive rooted at a directory. Streamed writes go to a
// temporary file next to the target and are renamed into place on Close,
// so readers never observe partially written objects.
type Local struct {
	root string
}

// NewLocal creates a Local archive rooted at dir, creating the directory
// if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: dir}, nil
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// Create opens a new object for streaming writes.
func (l *Local) Create(_ context.Context, name string) (WritableObject, error) {
	target := l.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}

	// The temp file lives in the target directory so the final rename
	// never crosses filesystems.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-*")
	if err != nil {
		return nil, err
	}
	return &localWritable{f: tmp, target: target}, nil
}

// Open opens an existing object for reading.
func (l *Local) Open(_ context.Context, name string) (Object, error) {
	f, err := os.Open(l.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localObject{f: f, size: info.Size()}, nil
}

// Put writes an object in one call, atomically.
func (l *Local) Put(ctx context.Context, name string, data []byte) error {
	w, err := l.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// Delete removes an object. Deleting a missing object is not an error.
func (l *Local) Delete(_ context.Context, name string) error {
	err := os.Remove(l.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the names of all objects with the given prefix, sorted.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// In-flight temp files are not objects yet.
		if strings.HasPrefix(d.Name(), ".partial-") {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type localObject struct {
	f    *os.File
	size int64
}

func (o *localObject) Read(p []byte) (int, error) {
	return o.f.Read(p)
}

func (o *localObject) Close() error {
	return o.f.Close()
}

func (o *localObject) Size() int64 {
	return o.size
}

type localWritable struct {
	f      *os.File
	target string
	done   bool
}

func (w *localWritable) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Close syncs the temp file and renames it over the target.
func (w *localWritable) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.f.Name())
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return err
	}
	return os.Rename(w.f.Name(), w.target)
}

// Abort discards the temp file without touching the target.
func (w *localWritable) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	_ = w.f.Close()
	return os.Remove(w.f.Name())
}
