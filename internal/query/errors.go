package query

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable marks every failure to load a persisted index.
var ErrIndexUnavailable = errors.New("index unavailable")

// IndexUnavailableError reports an index that could not be loaded.
type IndexUnavailableError struct {
	Path string
	Err  error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("failed to load index at %s: %v; ensure index is built", e.Path, e.Err)
}

func (e *IndexUnavailableError) Unwrap() []error {
	return []error{ErrIndexUnavailable, e.Err}
}
