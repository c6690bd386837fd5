// Package storage provides object storage abstractions for plan artifacts and
// the working/output prefixes of an ingestion job.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// PrefixMarker is the object written by MakePrefix on stores without
// directories, so that an empty prefix is still listable.
const PrefixMarker = ".keep"

// ObjectStorage abstracts object storage operations.
// Implementations include S3, gocloud blob buckets, and the local filesystem.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath.
	// Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// MakePrefix makes sure prefix exists and is usable as a directory.
	// It is idempotent.
	MakePrefix(ctx context.Context, prefix string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendBlob  = "blob"
)

// Options selects and configures a storage backend.
type Options struct {
	// Backend is one of local, s3, blob
	Backend string

	// Path is the base directory of the local backend
	Path string

	// Bucket is the S3 bucket name
	Bucket string

	// S3 holds client settings for the s3 backend
	S3 S3Config

	// URL is the gocloud bucket URL for the blob backend (gs://, file://, mem://)
	URL string
}

// Open creates the ObjectStorage described by opts.
func Open(ctx context.Context, opts Options) (ObjectStorage, error) {
	switch opts.Backend {
	case BackendLocal, "":
		return NewLocalStorage(opts.Path)
	case BackendS3:
		if opts.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 backend needs a bucket")
		}
		return NewS3Storage(ctx, opts.Bucket, opts.S3)
	case BackendBlob:
		if opts.URL == "" {
			return nil, fmt.Errorf("storage: blob backend needs a bucket url")
		}
		return NewBlobStorage(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

// cleanKey normalizes an object path to a slash-separated key without a
// leading slash.
func cleanKey(objectPath string) string {
	k := path.Clean("/" + strings.ReplaceAll(objectPath, "\\", "/"))
	return strings.TrimPrefix(k, "/")
}

// markerKey returns the key of the marker object for prefix.
func markerKey(prefix string) string {
	k := cleanKey(prefix)
	if k == "" {
		return PrefixMarker
	}
	return k + "/" + PrefixMarker
}
