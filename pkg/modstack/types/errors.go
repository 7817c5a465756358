package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure the engine reports matches exactly one of
// these with errors.Is.
var (
	// ErrNotFound means a resource has no base copy and no parent archive.
	ErrNotFound = errors.New("resource not found")

	// ErrParse means structured data was malformed.
	ErrParse = errors.New("parse error")

	// ErrSchemaMismatch means two merge participants have different shapes.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrIO means a filesystem or archive read failed.
	ErrIO = errors.New("i/o error")

	// ErrDepthExceeded means archives were nested beyond MaxArchiveDepth.
	ErrDepthExceeded = errors.New("archive nesting too deep")
)

// PathError records a failed operation on a resource path.
type PathError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

// NewPathError builds a PathError. err may be nil when the kind alone
// describes the failure.
func NewPathError(op, path string, kind, err error) *PathError {
	return &PathError{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorPath returns the path of the innermost PathError in err's chain.
func ErrorPath(err error) (string, bool) {
	pe, ok := InnermostPathError(err)
	if !ok {
		return "", false
	}
	return pe.Path, true
}

// InnermostPathError returns the deepest PathError in err's chain, which
// names the resource the failure started at.
func InnermostPathError(err error) (*PathError, bool) {
	var pe *PathError
	if !errors.As(err, &pe) {
		return nil, false
	}
	for {
		var inner *PathError
		if pe.Err == nil || !errors.As(pe.Err, &inner) {
			return pe, true
		}
		pe = inner
	}
}
