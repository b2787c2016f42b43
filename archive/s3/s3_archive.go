package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/coocgo/archive"
)

// Client is the subset of the S3 API the archive uses. *s3.Client
// satisfies it; tests substitute a mock. The multipart methods are
// required by the upload manager for streamed objects.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Compile time check to ensure Archive satisfies the archive.Archive interface.
var _ archive.Archive = (*Archive)(nil)

const (
	defaultPartSize    = 8 * 1024 * 1024
	defaultConcurrency = 5
)

type options struct {
	partSize    int64
	concurrency int
}

// Option configures an Archive.
type Option func(*options)

// WithPartSize sets the minimum part size for multipart uploads.
func WithPartSize(n int64) Option {
	return func(o *options) {
		o.partSize = n
	}
}

// WithConcurrency sets the number of concurrent part uploads.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// Archive stores snapshot objects in an S3 bucket.
type Archive struct {
	client Client
	bucket string
	prefix string
	opts   options
}

// New creates an S3-backed archive. rootPrefix is prepended to all object
// names (e.g. "snapshots/").
func New(client Client, bucket, rootPrefix string, optFns ...Option) *Archive {
	opts := options{
		partSize:    defaultPartSize,
		concurrency: defaultConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Archive{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		opts:   opts,
	}
}

func (a *Archive) key(name string) string {
	return path.Join(a.prefix, name)
}

// Open opens an existing object for reading.
func (a *Archive) Open(ctx context.Context, name string) (archive.Object, error) {
	key := a.key(name)

	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, archive.ErrNotFound
		}
		return nil, err
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, archive.ErrNotFound
		}
		return nil, err
	}

	return &s3Object{body: resp.Body, size: aws.ToInt64(head.ContentLength)}, nil
}

// Put writes an object in one call.
func (a *Archive) Put(ctx context.Context, name string, data []byte) error {
	key := a.key(name)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// Create opens a new object for streaming writes. The upload manager runs
// in the background; Close waits for it to finish.
func (a *Archive) Create(ctx context.Context, name string) (archive.WritableObject, error) {
	key := a.key(name)
	pr, pw := io.Pipe()

	uploader := manager.NewUploader(a.client, func(u *manager.Uploader) {
		u.PartSize = a.opts.partSize
		u.Concurrency = a.opts.concurrency
	})

	w := &s3Writable{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// Delete removes an object. S3 deletes are idempotent, so deleting a
// missing object succeeds.
func (a *Archive) Delete(ctx context.Context, name string) error {
	key := a.key(name)
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	return err
}

// List returns the names of all objects with the given prefix, sorted.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := a.key(prefix)
	var names []string

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if len(a.prefix) > 0 && len(name) > len(a.prefix) && name[:len(a.prefix)] == a.prefix {
				name = name[len(a.prefix):]
				if len(name) > 0 && name[0] == '/' {
					name = name[1:]
				}
			}
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

// s3Object streams one object's content.
type s3Object struct {
	body io.ReadCloser
	size int64
}

func (o *s3Object) Read(p []byte) (int, error) {
	return o.body.Read(p)
}

func (o *s3Object) Close() error {
	return o.body.Close()
}

func (o *s3Object) Size() int64 {
	return o.size
}

// s3Writable pipes writes into a background upload.
type s3Writable struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (w *s3Writable) Write(p []byte) (int, error) {
	if w.finished.Load() {
		return 0, io.ErrClosedPipe
	}
	return w.pw.Write(p)
}

func (w *s3Writable) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *s3Writable) Abort() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	return w.pw.CloseWithError(errors.New("upload aborted"))
}
