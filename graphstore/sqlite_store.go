package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// refSeparator joins reference keys inside a single scanned column. Keys
// quote entity names, so the raw unit separator byte can never occur in
// a stored key.
const refSeparator = "\x1f"

// SQLiteStore is a disk-backed implementation of Store on a single SQLite
// database file. Counts survive restarts, and the write-ahead journal lets
// concurrent readers proceed while observers increment.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if necessary) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rows (
		key        TEXT PRIMARY KEY,
		mean       REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		count      REAL NOT NULL DEFAULT 0
	) WITHOUT ROWID;

	CREATE TABLE IF NOT EXISTS refs (
		ref TEXT NOT NULL,
		key TEXT NOT NULL,
		PRIMARY KEY (ref, key)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS refs_by_key ON refs (key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Lookup retrieves the value stored under key.
func (s *SQLiteStore) Lookup(ctx context.Context, key string) (Value, bool, error) {
	var v Value
	err := s.db.QueryRowContext(ctx,
		"SELECT mean, confidence, count FROM rows WHERE key = ?", key,
	).Scan(&v.Mean, &v.Confidence, &v.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// Create inserts a zero-valued row under key. Creating an existing key is
// a no-op; the reference rows are keyed identically on re-insert, so the
// whole operation stays idempotent.
func (s *SQLiteStore) Create(ctx context.Context, key string, refs ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO rows (key) VALUES (?)", key,
	); err != nil {
		return err
	}
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO refs (ref, key) VALUES (?, ?)", ref, key,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetValue overwrites the full value of an existing row.
func (s *SQLiteStore) SetValue(ctx context.Context, key string, v Value) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE rows SET mean = ?, confidence = ?, count = ? WHERE key = ?",
		v.Mean, v.Confidence, v.Count, key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCount atomically adds delta to the row's count inside a single
// UPDATE, so concurrent observers never lose increments.
func (s *SQLiteStore) IncrementCount(ctx context.Context, key string, delta float64) (float64, error) {
	var count float64
	err := s.db.QueryRowContext(ctx,
		"UPDATE rows SET count = count + ? WHERE key = ? RETURNING count",
		delta, key,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncomingSet returns the keys of every row referencing the given entity.
func (s *SQLiteStore) IncomingSet(ctx context.Context, ref string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM refs WHERE ref = ?", ref,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Scan visits every row whose key starts with prefix.
func (s *SQLiteStore) Scan(ctx context.Context, prefix string, fn func(row Row) error) error {
	query := `
	SELECT r.key, r.mean, r.confidence, r.count,
	       COALESCE(group_concat(f.ref, char(31)), '')
	FROM rows r LEFT JOIN refs f ON f.key = r.key
	`
	args := []any{}
	if prefix != "" {
		if hi, ok := prefixUpperBound(prefix); ok {
			query += "WHERE r.key >= ? AND r.key < ?\n"
			args = append(args, prefix, hi)
		} else {
			query += "WHERE r.key >= ?\n"
			args = append(args, prefix)
		}
	}
	query += "GROUP BY r.key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row    Row
			joined string
		)
		if err := rows.Scan(&row.Key, &row.Value.Mean, &row.Value.Confidence, &row.Value.Count, &joined); err != nil {
			return err
		}
		// The range bound is an approximation; re-check the prefix.
		if !strings.HasPrefix(row.Key, prefix) {
			continue
		}
		if joined != "" {
			row.Refs = strings.Split(joined, refSeparator)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, under SQLite's binary collation. It fails only when
// every byte of the prefix is 0xFF.
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// Delete removes the row and its reference registrations.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "DELETE FROM rows WHERE key = ?", key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM refs WHERE key = ?", key); err != nil {
		return err
	}
	return tx.Commit()
}

// Len returns the number of rows currently stored.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rows").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
