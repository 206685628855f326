package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by StatObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object storage operations used to fetch submissions,
// publish feedback and upload reports.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// PutObject creates or replaces an object. sizeBytes may be -1 when unknown.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object, or ErrObjectNotFound.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// ListObjects streams every object under prefix. Errors are delivered in-band.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes    int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// ObjectInfo is one entry of a listing.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
	Err          error
}

// CollectObjects drains a listing, stopping at the first error.
func CollectObjects(ch <-chan ObjectInfo) ([]ObjectInfo, error) {
	var out []ObjectInfo
	var firstErr error
	for obj := range ch {
		if obj.Err != nil {
			if firstErr == nil {
				firstErr = obj.Err
			}
			continue
		}
		out = append(out, obj)
	}
	return out, firstErr
}
