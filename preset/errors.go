package preset

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-fxhost/settings"
)

var (
	// ErrMissingField is returned when a required document key is absent.
	ErrMissingField = errors.New("missing field")
	// ErrTypeMismatch is returned when a document value cannot be coerced
	// to the key's type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrBandIndexOutOfRange is returned when a band count is outside
	// [0, settings.MaxBands].
	ErrBandIndexOutOfRange = errors.New("band index out of range")
	// ErrInvalidName is returned for preset names that are empty or contain
	// path separators.
	ErrInvalidName = errors.New("preset: invalid name")
	// ErrNotFound is returned when a preset file does not exist.
	ErrNotFound = errors.New("preset: not found")
)

// FieldError ties a failure to the dot path of the document key.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("preset: %s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// fieldErr wraps err for path. Store type errors are reported as
// ErrTypeMismatch so callers only need the preset sentinels.
func fieldErr(path string, err error) error {
	if errors.Is(err, settings.ErrTypeMismatch) && !errors.Is(err, ErrTypeMismatch) {
		err = fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}

	return &FieldError{Path: path, Err: err}
}
