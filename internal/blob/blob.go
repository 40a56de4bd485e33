// Package blob stores image bytes under opaque keys, outside the database.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotExist is returned (wrapped) when a key has no blob.
var ErrNotExist = errors.New("blob does not exist")

// Object describes a stored blob.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is a flat key/value store for binary data.
type Store interface {
	// Put writes data under key, replacing any previous blob.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get opens the blob stored under key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob under key, returning ErrNotExist if there is none.
	Delete(ctx context.Context, key string) error

	// List returns every stored blob.
	List(ctx context.Context) ([]Object, error)
}

// ValidateKey rejects keys that could escape a flat namespace.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("invalid blob key %q", key)
	case strings.ContainsAny(key, `/\`+"\x00"):
		return fmt.Errorf("invalid blob key %q: contains a path separator", key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("invalid blob key %q: hidden name", key)
	}
	return nil
}
