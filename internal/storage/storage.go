// Package storage defines the backend interface evidence archives are written
// through. Backends register themselves from an init() in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so the registrations run.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is implemented by every archive backend.
type Storage interface {
	// Upload stores the content of reader at path and reports its SHA256.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete is idempotent: deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// GetURL returns a download URL. Cloud backends sign it for ttl; the
	// local backend ignores ttl.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	Exists(ctx context.Context, path string) (bool, error)

	// List returns the objects under prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Provisioner is implemented by backends that can create their bucket or
// container at startup.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// UploadResult describes a stored object.
type UploadResult struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Object is a single entry returned by List.
type Object struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}
