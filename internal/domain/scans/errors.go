package scans

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by RecordStore implementations when no record
// matches the given tenant/id.
var ErrNotFound = errors.New("scan not found")

// ErrArtifactNotFound is returned by ArtifactStore implementations when the
// artifact path does not exist. Any other read failure is a plain I/O error.
var ErrArtifactNotFound = errors.New("artifact not found")

// ValidationError marks an artifact that failed pre-scan validation
// (missing, not a regular file, empty, oversized). It is terminal for the
// scan: the record moves to failed, the artifact is left untouched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("artifact validation failed: %s", e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
