// Package provider defines destinations for exported artifacts.
//
// A Sink stores blobs returned by the API (case spreadsheets, rendered mind
// maps) under a key. Authentication for cloud sinks uses SDK default
// credential chains; sinks should not implement custom auth logic.
package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Sink stores exported blobs.
//
// Implementations should:
//   - Write atomically where the backend allows it
//   - Return ErrNotFound from Head when the key is absent
//   - Be safe for concurrent use
type Sink interface {
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Head returns metadata for a stored object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Location returns a human-readable address for key.
	Location(key string) string

	// Close releases any resources held by the sink.
	Close() error
}

// ObjectMeta contains metadata for a stored object.
type ObjectMeta struct {
	// Key is the object key relative to the sink root.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is when the object was last written.
	LastModified time.Time

	// ContentType is the MIME type of the object, when the backend keeps it.
	ContentType string
}

// ProviderType identifies a sink backend.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// MaxKeyAttempts bounds the collision search of AvailableKey.
const MaxKeyAttempts = 1000

// AvailableKey returns key if nothing is stored under it, otherwise the first
// free variant with a numeric suffix before the extension
// (report.xlsx, report_1.xlsx, report_2.xlsx, ...).
func AvailableKey(ctx context.Context, sink Sink, key string) (string, error) {
	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext)

	for i := 0; i < MaxKeyAttempts; i++ {
		candidate := key
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		_, err := sink.Head(ctx, candidate)
		if IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free key for %s after %d attempts", key, MaxKeyAttempts)
}
