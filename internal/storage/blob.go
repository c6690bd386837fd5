package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	"gocloud.dev/gcerrors"
)

// BlobStorage implements ObjectStorage on a gocloud bucket. The driver is
// selected by the URL scheme: gs://, file:// or mem://.
type BlobStorage struct {
	bucket *blob.Bucket
	url    string
}

// NewBlobStorage opens the bucket at url.
func NewBlobStorage(ctx context.Context, url string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &BlobStorage{bucket: bucket, url: url}, nil
}

// Put writes data to the bucket.
func (b *BlobStorage) Put(ctx context.Context, objectPath string, data []byte) error {
	key := cleanKey(objectPath)
	if err := b.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUploadFailed, key, err)
	}
	return nil
}

// Get reads an object from the bucket.
func (b *BlobStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	key := cleanKey(objectPath)
	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrDownloadFailed, key, err)
	}
	return data, nil
}

// Delete removes an object from the bucket.
func (b *BlobStorage) Delete(ctx context.Context, objectPath string) error {
	key := cleanKey(objectPath)
	if err := b.bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("%w: delete %s: %v", ErrDeleteFailed, key, err)
	}
	return nil
}

// Exists checks if an object exists in the bucket.
func (b *BlobStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	return b.bucket.Exists(ctx, cleanKey(objectPath))
}

// MakePrefix writes an empty marker object under prefix.
func (b *BlobStorage) MakePrefix(ctx context.Context, prefix string) error {
	key := markerKey(prefix)
	exists, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if exists {
		return nil
	}
	return b.Put(ctx, key, nil)
}

// ListObjects returns all object keys under the given prefix in lexical order.
func (b *BlobStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	it := b.bucket.List(&blob.ListOptions{Prefix: cleanKey(prefix)})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if !obj.IsDir {
			objects = append(objects, obj.Key)
		}
	}
	sort.Strings(objects)
	return objects, nil
}

// URI returns the canonical URI of the bucket.
func (b *BlobStorage) URI() string {
	return b.url
}

// Close releases the bucket connection.
func (b *BlobStorage) Close() error {
	if b.bucket != nil {
		return b.bucket.Close()
	}
	return nil
}
