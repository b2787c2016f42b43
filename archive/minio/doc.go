// Package minio provides an Archive backed by MinIO or any S3-compatible
// object store, using the official MinIO Go client.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	arc := minioarchive.New(client, "coocgo", "snapshots/")
//	report, err := sess.PublishSnapshot(ctx, arc, "snap-0001.cooc")
//
// Works with MinIO, Ceph, Garage, SeaweedFS and other S3-compatible
// systems without any AWS dependencies.
package minio
