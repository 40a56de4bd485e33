package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input. Nothing has been written.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound is returned for items that do not exist and for items
	// outside the caller's office; the two are indistinguishable.
	ErrNotFound = errors.New("not found")
	// ErrQuantityRange marks an archive or restore amount outside the
	// available units.
	ErrQuantityRange = errors.New("quantity out of range")
	// ErrStore wraps relational or blob store failures.
	ErrStore = errors.New("store failure")
	// ErrCreateFailed is returned when a create was rolled back.
	ErrCreateFailed = fmt.Errorf("create failed: %w", ErrStore)
)

// LostBlobsError reports blobs that were deleted before the transaction that
// detached them failed. The rows still reference them.
type LostBlobsError struct {
	Filenames []string
	Err       error
}

func (e *LostBlobsError) Error() string {
	return fmt.Sprintf("blobs deleted before rollback [%s]: %v", strings.Join(e.Filenames, ", "), e.Err)
}

func (e *LostBlobsError) Unwrap() error { return e.Err }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
