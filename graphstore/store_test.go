package graphstore

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateLookup", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.Create(ctx, "S(a|b+)", "a", "b"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		v, ok, err := s.Lookup(ctx, "S(a|b+)")
		if err != nil || !ok {
			t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
		}
		if v != (Value{}) {
			t.Fatalf("new row should be zero-valued, got %+v", v)
		}

		// Lookup non-existent
		_, ok, err = s.Lookup(ctx, "S(missing|x+)")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if ok {
			t.Fatal("Lookup should return false for non-existent key")
		}

		// Create is idempotent
		if err := s.Create(ctx, "S(a|b+)", "a", "b"); err != nil {
			t.Fatalf("repeated Create failed: %v", err)
		}
		n, err := s.Len(ctx)
		if err != nil || n != 1 {
			t.Fatalf("Len should be 1, got %d (err=%v)", n, err)
		}
	})

	t.Run("IncrementCount", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.Create(ctx, "P(any:a|b)", "a", "b"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := s.IncrementCount(ctx, "P(any:a|b)", 1)
		if err != nil || got != 1 {
			t.Fatalf("IncrementCount = %v, %v; want 1", got, err)
		}
		got, err = s.IncrementCount(ctx, "P(any:a|b)", 2.5)
		if err != nil || got != 3.5 {
			t.Fatalf("IncrementCount = %v, %v; want 3.5", got, err)
		}

		// Negative deltas are how merges move counts out.
		got, err = s.IncrementCount(ctx, "P(any:a|b)", -1.5)
		if err != nil || got != 2 {
			t.Fatalf("IncrementCount = %v, %v; want 2", got, err)
		}

		// Missing keys must be created first.
		_, err = s.IncrementCount(ctx, "P(any:missing|b)", 1)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("IncrementCount on missing key: got %v, want ErrNotFound", err)
		}
	})

	t.Run("SetValue", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.Create(ctx, "P(any:a|b)", "a", "b"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		want := Value{Mean: 1.5, Confidence: 0.9, Count: 7}
		if err := s.SetValue(ctx, "P(any:a|b)", want); err != nil {
			t.Fatalf("SetValue failed: %v", err)
		}
		v, ok, err := s.Lookup(ctx, "P(any:a|b)")
		if err != nil || !ok || v != want {
			t.Fatalf("Lookup after SetValue = %+v, ok=%v, err=%v; want %+v", v, ok, err, want)
		}

		if err := s.SetValue(ctx, "P(any:missing|b)", want); !errors.Is(err, ErrNotFound) {
			t.Fatalf("SetValue on missing key: got %v, want ErrNotFound", err)
		}
	})

	t.Run("IncomingSet", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		mustCreate(t, s, "S(a|b+)", "a", "b")
		mustCreate(t, s, "S(b|a-)", "b", "a")
		mustCreate(t, s, "P(any:a|c)", "a", "c")

		keys, err := s.IncomingSet(ctx, "a")
		if err != nil {
			t.Fatalf("IncomingSet failed: %v", err)
		}
		sort.Strings(keys)
		want := []string{"P(any:a|c)", "S(a|b+)", "S(b|a-)"}
		if !equalStrings(keys, want) {
			t.Fatalf("IncomingSet(a) = %v, want %v", keys, want)
		}

		keys, err = s.IncomingSet(ctx, "c")
		if err != nil {
			t.Fatalf("IncomingSet failed: %v", err)
		}
		if !equalStrings(keys, []string{"P(any:a|c)"}) {
			t.Fatalf("IncomingSet(c) = %v", keys)
		}

		keys, err = s.IncomingSet(ctx, "nothing")
		if err != nil || len(keys) != 0 {
			t.Fatalf("IncomingSet(nothing) = %v, %v; want empty", keys, err)
		}
	})

	t.Run("Scan", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		mustCreate(t, s, "S(a|b+)", "a", "b")
		mustCreate(t, s, "S(b|a-)", "b", "a")
		mustCreate(t, s, "P(any:a|b)", "a", "b")
		if _, err := s.IncrementCount(ctx, "P(any:a|b)", 4); err != nil {
			t.Fatalf("IncrementCount failed: %v", err)
		}

		var sections []string
		err := s.Scan(ctx, "S(", func(row Row) error {
			sections = append(sections, row.Key)
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		sort.Strings(sections)
		if !equalStrings(sections, []string{"S(a|b+)", "S(b|a-)"}) {
			t.Fatalf("Scan(S() = %v", sections)
		}

		// Full scan carries values and refs.
		found := false
		err = s.Scan(ctx, "", func(row Row) error {
			if row.Key != "P(any:a|b)" {
				return nil
			}
			found = true
			if row.Value.Count != 4 {
				t.Errorf("scanned count = %v, want 4", row.Value.Count)
			}
			refs := append([]string(nil), row.Refs...)
			sort.Strings(refs)
			if !equalStrings(refs, []string{"a", "b"}) {
				t.Errorf("scanned refs = %v, want [a b]", row.Refs)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if !found {
			t.Fatal("full scan never visited P(any:a|b)")
		}

		// A callback error stops the scan and propagates.
		sentinel := errors.New("stop")
		err = s.Scan(ctx, "", func(Row) error { return sentinel })
		if !errors.Is(err, sentinel) {
			t.Fatalf("Scan error = %v, want sentinel", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		mustCreate(t, s, "S(a|b+)", "a", "b")
		mustCreate(t, s, "S(b|a-)", "b", "a")

		if err := s.Delete(ctx, "S(a|b+)"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		_, ok, err := s.Lookup(ctx, "S(a|b+)")
		if err != nil || ok {
			t.Fatalf("Lookup after Delete: ok=%v err=%v", ok, err)
		}

		// The deleted row leaves the incoming sets of its refs.
		keys, err := s.IncomingSet(ctx, "a")
		if err != nil {
			t.Fatalf("IncomingSet failed: %v", err)
		}
		if !equalStrings(keys, []string{"S(b|a-)"}) {
			t.Fatalf("IncomingSet(a) after delete = %v", keys)
		}

		if err := s.Delete(ctx, "S(a|b+)"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("repeated Delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ConcurrentIncrements", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		mustCreate(t, s, "P(any:a|b)", "a", "b")

		const workers, perWorker = 4, 25
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					if _, err := s.IncrementCount(ctx, "P(any:a|b)", 1); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent IncrementCount failed: %v", err)
		}

		count, err := Count(ctx, s, "P(any:a|b)")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != workers*perWorker {
			t.Fatalf("count = %v, want %d", count, workers*perWorker)
		}
	})

	t.Run("Helpers", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		// Count on a missing key is zero, not an error.
		count, err := Count(ctx, s, "P(any:missing|b)")
		if err != nil || count != 0 {
			t.Fatalf("Count(missing) = %v, %v; want 0, nil", count, err)
		}

		// Ensure creates and increments in one call.
		got, err := Ensure(ctx, s, "P(any:a|b)", 2, "a", "b")
		if err != nil || got != 2 {
			t.Fatalf("Ensure = %v, %v; want 2", got, err)
		}
		got, err = Ensure(ctx, s, "P(any:a|b)", 3, "a", "b")
		if err != nil || got != 5 {
			t.Fatalf("repeated Ensure = %v, %v; want 5", got, err)
		}

		// SetMean keeps the count.
		if err := SetMean(ctx, s, "P(any:a|b)", math.Log2(3), 0.8); err != nil {
			t.Fatalf("SetMean failed: %v", err)
		}
		v, _, err := s.Lookup(ctx, "P(any:a|b)")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if v.Count != 5 || v.Mean != math.Log2(3) || v.Confidence != 0.8 {
			t.Fatalf("after SetMean: %+v", v)
		}

		if err := SetMean(ctx, s, "P(any:missing|b)", 1, 1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("SetMean on missing key: got %v, want ErrNotFound", err)
		}
	})
}

func mustCreate(t *testing.T, s Store, key string, refs ...string) {
	t.Helper()
	if err := s.Create(context.Background(), key, refs...); err != nil {
		t.Fatalf("Create(%s) failed: %v", key, err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cooc.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		return s
	})
}

func TestCachingStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		c, err := NewCachingStore(NewMemStore(), 64)
		if err != nil {
			t.Fatalf("NewCachingStore failed: %v", err)
		}
		return c
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cooc.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	mustCreate(t, s, "P(any:a|b)", "a", "b")
	if _, err := s.IncrementCount(ctx, "P(any:a|b)", 3); err != nil {
		t.Fatalf("IncrementCount failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Counts survive a reopen.
	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	count, err := Count(ctx, s, "P(any:a|b)")
	if err != nil || count != 3 {
		t.Fatalf("count after reopen = %v, %v; want 3", count, err)
	}
	keys, err := s.IncomingSet(ctx, "a")
	if err != nil || !equalStrings(keys, []string{"P(any:a|b)"}) {
		t.Fatalf("IncomingSet after reopen = %v, %v", keys, err)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{"S(", "S)", true},
		{"P(any:", "P(any;", true},
		{"a\xff", "b", true},
		{"\xff\xff", "", false},
	}

	for _, tt := range tests {
		got, ok := prefixUpperBound(tt.prefix)
		if got != tt.want || ok != tt.ok {
			t.Errorf("prefixUpperBound(%q) = %q, %v; want %q, %v", tt.prefix, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCachingStore_Invalidation(t *testing.T) {
	ctx := context.Background()
	inner := NewMemStore()
	c, err := NewCachingStore(inner, 64)
	if err != nil {
		t.Fatalf("NewCachingStore failed: %v", err)
	}
	defer c.Close()

	mustCreate(t, c, "P(any:a|b)", "a", "b")

	// Warm the caches.
	if _, _, err := c.Lookup(ctx, "P(any:a|b)"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if _, err := c.IncomingSet(ctx, "a"); err != nil {
		t.Fatalf("IncomingSet failed: %v", err)
	}

	// An increment through the cache is visible on the next lookup.
	if _, err := c.IncrementCount(ctx, "P(any:a|b)", 2); err != nil {
		t.Fatalf("IncrementCount failed: %v", err)
	}
	v, _, err := c.Lookup(ctx, "P(any:a|b)")
	if err != nil || v.Count != 2 {
		t.Fatalf("Lookup after increment = %+v, %v; want count 2", v, err)
	}

	// A new row referencing "a" shows up in the cached incoming set.
	mustCreate(t, c, "S(a|b+)", "a", "b")
	keys, err := c.IncomingSet(ctx, "a")
	if err != nil {
		t.Fatalf("IncomingSet failed: %v", err)
	}
	sort.Strings(keys)
	if !equalStrings(keys, []string{"P(any:a|b)", "S(a|b+)"}) {
		t.Fatalf("IncomingSet after Create = %v", keys)
	}

	// Deletes drop both caches.
	if err := c.Delete(ctx, "S(a|b+)"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	keys, err = c.IncomingSet(ctx, "a")
	if err != nil || !equalStrings(keys, []string{"P(any:a|b)"}) {
		t.Fatalf("IncomingSet after Delete = %v, %v", keys, err)
	}
}
