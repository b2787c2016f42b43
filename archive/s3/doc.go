// Package s3 provides an Archive backed by Amazon S3, plus a commit store
// that pairs S3 with DynamoDB so CURRENT pointer updates are atomic under
// concurrent writers.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	arc := s3archive.New(s3.NewFromConfig(cfg), "my-bucket", "snapshots/")
//	report, err := sess.PublishSnapshot(ctx, arc, "snap-0001.cooc")
//
// # Features
//
//   - Multipart uploads for large snapshots
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Optional DynamoDB commit log for safe concurrent publishing
package s3
