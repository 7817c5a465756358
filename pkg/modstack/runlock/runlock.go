// Package runlock keeps two apply runs from writing the same output
// directory at once.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the lock file created in the output directory.
const FileName = ".modstack.lock"

// ErrLocked means another process holds the lock.
var ErrLocked = errors.New("output directory is locked by another run")

// Lock is a held advisory lock on an output directory.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock for dir without blocking. It fails with
// ErrLocked when another process already holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := acquire(path)
	if err != nil {
		return nil, err
	}
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := release(l.path, l.file)
	l.file = nil
	return err
}
