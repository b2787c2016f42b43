package archive

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// Compile time check to ensure Memory satisfies the Archive interface.
var _ Archive = (*Memory)(nil)

// Memory is an in-memory Archive for tests. Thread-safe.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates a new in-memory archive.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
	}
}

// Create opens a new object for streaming writes.
func (m *Memory) Create(_ context.Context, name string) (WritableObject, error) {
	return &memoryWritable{arc: m, name: name}, nil
}

// Open opens an existing object for reading.
func (m *Memory) Open(_ context.Context, name string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so later Puts never mutate an open reader.
	copied := make([]byte, len(data))
	copy(copied, data)
	return &memoryObject{r: bytes.NewReader(copied), size: int64(len(copied))}, nil
}

// Put writes an object in one call.
func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.objects[name] = copied
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, name)
	return nil
}

// List returns the names of all objects with the given prefix, sorted.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type memoryObject struct {
	r    *bytes.Reader
	size int64
}

func (o *memoryObject) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

func (o *memoryObject) Close() error {
	return nil
}

func (o *memoryObject) Size() int64 {
	return o.size
}

type memoryWritable struct {
	arc  *Memory
	name string
	buf  bytes.Buffer
	done bool
}

func (w *memoryWritable) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memoryWritable) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	w.arc.mu.Lock()
	defer w.arc.mu.Unlock()

	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.arc.objects[w.name] = data
	return nil
}

func (w *memoryWritable) Abort() error {
	w.done = true
	return nil
}
