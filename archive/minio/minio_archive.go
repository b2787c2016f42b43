package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/coocgo/archive"
)

// Compile time check to ensure Archive satisfies the archive.Archive interface.
var _ archive.Archive = (*Archive)(nil)

// Archive stores snapshot objects in a MinIO (or S3-compatible) bucket.
type Archive struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO-backed archive. rootPrefix is prepended to all
// object names (e.g. "snapshots/").
func New(client *minio.Client, bucket, rootPrefix string) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (a *Archive) key(name string) string {
	return path.Join(a.prefix, name)
}

// Open opens an existing object for reading.
func (a *Archive) Open(ctx context.Context, name string) (archive.Object, error) {
	key := a.key(name)

	// Stat first to verify existence and learn the size.
	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, archive.ErrNotFound
		}
		return nil, err
	}

	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return &minioObject{obj: obj, size: info.Size}, nil
}

// Put writes an object in one call.
func (a *Archive) Put(ctx context.Context, name string, data []byte) error {
	key := a.key(name)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Create opens a new object for streaming writes. The upload runs in the
// background; Close waits for it to finish.
func (a *Archive) Create(ctx context.Context, name string) (archive.WritableObject, error) {
	key := a.key(name)
	pr, pw := io.Pipe()

	w := &minioWritable{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := a.client.PutObject(ctx, a.bucket, key, pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (a *Archive) Delete(ctx context.Context, name string) error {
	key := a.key(name)
	err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
		return err
	}
	return nil
}

// List returns the names of all objects with the given prefix, sorted.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := a.key(prefix)

	var names []string
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, a.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// minioObject streams one object's content.
type minioObject struct {
	obj  *minio.Object
	size int64
}

func (o *minioObject) Read(p []byte) (int, error) {
	return o.obj.Read(p)
}

func (o *minioObject) Close() error {
	return o.obj.Close()
}

func (o *minioObject) Size() int64 {
	return o.size
}

// minioWritable pipes writes into a background upload.
type minioWritable struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (w *minioWritable) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *minioWritable) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *minioWritable) Abort() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	return w.pw.CloseWithError(errors.New("upload aborted"))
}
