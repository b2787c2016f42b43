package graphstore

import (
	"context"
	"strings"
	"sync"
)

// MemStore is an in-memory implementation of Store using Go maps.
// It's suitable for datasets that fit in memory and provides fast O(1)
// access. Rows are lost on process exit; pair it with a snapshot if the
// data must survive restarts.
type MemStore struct {
	mu       sync.RWMutex
	rows     map[string]*memRow
	incoming map[string]map[string]struct{}
}

type memRow struct {
	value Value
	refs  []string
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rows:     make(map[string]*memRow),
		incoming: make(map[string]map[string]struct{}),
	}
}

// Lookup retrieves the value stored under key.
func (m *MemStore) Lookup(_ context.Context, key string) (Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rows[key]
	if !ok {
		return Value{}, false, nil
	}
	return r.value, true, nil
}

// Create inserts a zero-valued row under key. Creating an existing key is
// a no-op.
func (m *MemStore) Create(_ context.Context, key string, refs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[key]; ok {
		return nil
	}
	m.rows[key] = &memRow{refs: refs}
	for _, ref := range refs {
		set, ok := m.incoming[ref]
		if !ok {
			set = make(map[string]struct{})
			m.incoming[ref] = set
		}
		set[key] = struct{}{}
	}
	return nil
}

// SetValue overwrites the full value of an existing row.
func (m *MemStore) SetValue(_ context.Context, key string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[key]
	if !ok {
		return ErrNotFound
	}
	r.value = v
	return nil
}

// IncrementCount atomically adds delta to the row's count.
func (m *MemStore) IncrementCount(_ context.Context, key string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[key]
	if !ok {
		return 0, ErrNotFound
	}
	r.value.Count += delta
	return r.value.Count, nil
}

// IncomingSet returns the keys of every row referencing the given entity.
func (m *MemStore) IncomingSet(_ context.Context, ref string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.incoming[ref]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys, nil
}

// Scan visits every row whose key starts with prefix.
func (m *MemStore) Scan(ctx context.Context, prefix string, fn func(row Row) error) error {
	// Snapshot the matching rows under the read lock, then release it
	// before invoking fn so callbacks may call back into the store.
	m.mu.RLock()
	matched := make([]Row, 0, len(m.rows))
	for k, r := range m.rows {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		refs := make([]string, len(r.refs))
		copy(refs, r.refs)
		matched = append(matched, Row{Key: k, Value: r.value, Refs: refs})
	}
	m.mu.RUnlock()

	for _, row := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the row and its reference registrations.
func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[key]
	if !ok {
		return ErrNotFound
	}
	for _, ref := range r.refs {
		if set, ok := m.incoming[ref]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.incoming, ref)
			}
		}
	}
	delete(m.rows, key)
	return nil
}

// Len returns the number of rows currently stored.
func (m *MemStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rows), nil
}

// Close releases resources held by the store. For MemStore it is a no-op.
func (m *MemStore) Close() error {
	return nil
}
