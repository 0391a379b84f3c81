package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStorage holds test case archives uploaded by administrators.
type ObjectStorage interface {
	// GetObject opens a reader for an object. Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// PresignPut returns a URL the caller can PUT the object body to directly.
	PresignPut(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// ListObjects streams objects under prefix. The channel closes when listing ends.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo

	RemoveObjects(ctx context.Context, bucket string, keys []string) error
}

// ObjectInfo is one listed object, or a listing error.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
