// Package storage keeps uploaded documents either on local disk or in Cloudinary.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotLocal is returned when a reference points at a remote object.
var ErrNotLocal = errors.New("object is not stored locally")

// ObjectStore persists uploaded documents. Put returns the stored reference:
// a relative key for local storage, an absolute https URL for remote stores.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// IsRemote reports whether ref is an absolute URL served by a remote store.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}
