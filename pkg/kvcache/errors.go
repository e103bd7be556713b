package kvcache

import (
	"errors"
	"fmt"
)

// ErrNoContent reports that a rebuild was skipped because the requested
// document set resolved to zero usable segments. Any prior cached context
// is left untouched.
var ErrNoContent = errors.New("no usable document content")

// BuildError reports a failed context build. The prior cached entry, if
// any, is preserved.
type BuildError struct {
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("building context for session %s: %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}
