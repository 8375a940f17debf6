package post

import (
	"errors"
	"fmt"
)

var (
	ErrStorageCorrupt = errors.New("post store is corrupt")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("post not found")
	ErrAlreadyPosted  = errors.New("post already posted")
)

// StorageCorruptError reports a store file that exists but can't be parsed.
// The file is left untouched.
type StorageCorruptError struct {
	Path string
	Err  error
}

func (e *StorageCorruptError) Error() string {
	return fmt.Sprintf("post store %s is corrupt: %v", e.Path, e.Err)
}

func (e *StorageCorruptError) Unwrap() []error { return []error{ErrStorageCorrupt, e.Err} }

// Invalid wraps a validation message with ErrInvalidRequest.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
