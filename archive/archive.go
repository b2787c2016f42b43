// Package archive stores finished snapshot streams as named immutable
// objects and tracks which one is current. Backends exist for the local
// filesystem, plain memory, MinIO and Amazon S3; the s3 subpackage adds a
// commit store that makes CURRENT updates atomic under concurrent writers.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when a named object does not exist.
var ErrNotFound = errors.New("archive: not found")

// Current is the well-known object name holding the name of the most
// recently published snapshot.
const Current = "CURRENT"

// Archive stores immutable objects by name.
// Implementations must be safe for concurrent use.
type Archive interface {
	// Create opens a new object for streaming writes. The object becomes
	// visible only once the returned writer is closed.
	Create(ctx context.Context, name string) (WritableObject, error)

	// Open opens an existing object for reading.
	Open(ctx context.Context, name string) (Object, error)

	// Put writes a small object in one call.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all objects with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Object is a read-only handle to a stored object.
type Object interface {
	io.Reader
	io.Closer

	// Size returns the object size in bytes.
	Size() int64
}

// WritableObject is a streaming write handle. Close commits the object,
// Abort discards it. Calling either after the other is a no-op.
type WritableObject interface {
	io.Writer
	io.Closer

	// Abort discards everything written so far.
	Abort() error
}

// SetCurrent points the CURRENT marker at the named object.
//
// On plain backends this is a last-writer-wins Put; the s3.CommitStore
// turns it into an atomic compare-and-swap commit.
func SetCurrent(ctx context.Context, a Archive, name string) error {
	return a.Put(ctx, Current, []byte(name))
}

// GetCurrent resolves the CURRENT marker to an object name. Returns
// ErrNotFound when no snapshot has been published yet.
func GetCurrent(ctx context.Context, a Archive) (string, error) {
	obj, err := a.Open(ctx, Current)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("%w: empty CURRENT marker", ErrNotFound)
	}
	return name, nil
}

// Latest resolves the CURRENT marker and opens the object it names,
// returning the object together with its name.
func Latest(ctx context.Context, a Archive) (Object, string, error) {
	name, err := GetCurrent(ctx, a)
	if err != nil {
		return nil, "", err
	}
	obj, err := a.Open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return obj, name, nil
}
