package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectExists is returned by Create when the key is already taken.
var ErrObjectExists = errors.New("object already exists")

// ErrObjectNotFound is returned by Open and Delete for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// ObjectWriter receives an object incrementally. Exactly one of Commit
// or Abort must be called.
type ObjectWriter interface {
	io.Writer
	// Commit finalizes the object and returns the path to record for it.
	Commit() (string, error)
	// Abort discards whatever was written.
	Abort() error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageProvider stores render artifacts (localfs, gdrive).
type StorageProvider interface {
	Provider() string

	Create(ctx context.Context, key, contentType string) (ObjectWriter, error)
	Open(ctx context.Context, path string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, path string) error
}
