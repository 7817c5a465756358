// Package prune removes resources that no layer provides any more from
// a deployment, either deleting them or moving them to the system trash,
// and removes the directories that leaves empty.
package prune

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/jamesainslie/modstack/pkg/modstack/logging"
)

var logger = logging.Get("prune")

// commandTimeout bounds a trash helper invocation.
const commandTimeout = 30 * time.Second

// Method selects how files are removed.
type Method int

const (
	// Delete removes files permanently.
	Delete Method = iota
	// Trash moves files to the system trash where one is available and
	// deletes them otherwise.
	Trash
)

// ParseMethod accepts "delete" or "trash". An empty string is Delete.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "delete":
		return Delete, nil
	case "trash":
		return Trash, nil
	default:
		return Delete, fmt.Errorf("unknown removal method %q", s)
	}
}

// Pruner removes files below one root. It is safe for concurrent use.
type Pruner struct {
	root   string
	method Method
	mu     sync.Mutex
}

// New returns a Pruner for files below root.
func New(root string, method Method) *Pruner {
	return &Pruner{root: root, method: method}
}

// Remove deletes the file at slash-separated path rel below the root and
// then every parent directory the removal leaves empty, stopping at the
// root. It reports false when the file did not exist.
func (p *Pruner) Remove(rel string) (bool, error) {
	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	if _, err := os.Lstat(abs); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	var err error
	if p.method == Trash {
		err = MoveToTrash(abs)
	} else {
		err = fallbackDelete(abs)
	}
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return true, pruneEmpty(p.root, filepath.Dir(abs))
}

// pruneEmpty removes dir and its ancestors while they are empty, never
// touching root itself.
func pruneEmpty(root, dir string) error {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pruning %s: %w", dir, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pruning %s: %w", dir, err)
		}
		logger.Debug("removed empty directory", "path", dir)
	}
	return nil
}

// MoveToTrash moves a file or directory to the system trash.
// On macOS: uses AppleScript to move to Trash.
// On Linux: uses gio trash or trash-cli.
// Falls back to permanent delete if no trash available.
func MoveToTrash(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot trash %q: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	switch runtime.GOOS {
	case "darwin":
		return moveToTrashMacOS(absPath)
	case "linux":
		return moveToTrashLinux(absPath)
	default:
		return fallbackDelete(absPath)
	}
}

func moveToTrashMacOS(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	script := fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return fallbackDelete(path)
	}
	return nil
}

func moveToTrashLinux(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	for _, tool := range [][]string{{"gio", "trash"}, {"trash-put"}} {
		bin, err := exec.LookPath(tool[0])
		if err != nil {
			continue
		}
		args := append(tool[1:], path)
		if err := exec.CommandContext(ctx, bin, args...).Run(); err == nil {
			return nil
		}
	}
	return fallbackDelete(path)
}

// fallbackDelete permanently removes a file or directory.
func fallbackDelete(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}
