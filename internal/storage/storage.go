// Package storage moves snapshot files between the local filesystem and
// remote object storage.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the remote side of snapshot sync.
// Implementations cover S3-compatible services and a local directory
// mirror for offline use and tests.
type ObjectStorage interface {
	// Upload copies a local file to object storage.
	// localPath is the file to upload; objectPath is the destination key.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to the local filesystem.
	// objectPath is the source key; localPath is the destination file.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting an absent object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object keys under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
