package manifest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ErrEntryNotFound is returned by History.Get for an unknown ID.
var ErrEntryNotFound = errors.New("history entry not found")

// OperationType names the kind of run an entry records.
type OperationType string

const (
	// OpApply is a full apply.
	OpApply OperationType = "apply"
	// OpApplyPending is an apply restricted to the pending log.
	OpApplyPending OperationType = "apply-pending"
)

// Entry records one apply run.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation OperationType `json:"operation"`
	Output    string        `json:"output"`
	Layers    []string      `json:"layers"`
	Files     []FileRecord  `json:"files"`
	Removed   []string      `json:"removed,omitempty"`
	// SizeTable is the BLAKE3 digest of the size table written.
	SizeTable string  `json:"size_table,omitempty"`
	Summary   Summary `json:"summary"`
}

// FileRecord is one resource written by a run.
type FileRecord struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Summary totals an entry.
type Summary struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
	Removed    int64 `json:"removed"`
}

// Run describes a finished apply for History.Log.
type Run struct {
	Operation OperationType
	Output    string
	Layers    []string
	Files     []FileRecord
	Removed   []string
	SizeTable []byte
}

// History keeps one JSON file per apply run in a directory.
type History struct {
	dir string
	mu  sync.Mutex
}

// NewHistory returns a History stored in dir. The directory is created
// by EnsureDir or on the first Log.
func NewHistory(dir string) (*History, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &History{dir: dir}, nil
}

// Dir returns the history directory.
func (h *History) Dir() string { return h.dir }

// EnsureDir creates the history directory if it does not exist.
func (h *History) EnsureDir() error {
	return os.MkdirAll(h.dir, 0o755)
}

// Log persists run and returns the created entry.
func (h *History) Log(run Run) (*Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	var totalBytes int64
	for _, f := range run.Files {
		totalBytes += f.Size
	}

	entry := &Entry{
		ID:        generateID(run.Operation, now),
		Timestamp: now,
		Operation: run.Operation,
		Output:    run.Output,
		Layers:    run.Layers,
		Files:     run.Files,
		Removed:   run.Removed,
		Summary: Summary{
			TotalFiles: int64(len(run.Files)),
			TotalBytes: totalBytes,
			Removed:    int64(len(run.Removed)),
		},
	}
	if run.SizeTable != nil {
		entry.SizeTable = Digest(run.SizeTable)
	}

	if err := h.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("writing history entry: %w", err)
	}
	return entry, nil
}

func (h *History) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	return writeAtomic(filepath.Join(h.dir, entry.ID+".json"), data)
}

// List returns entries newest first. A limit of 0 or less returns all.
func (h *History) List(limit int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	files, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := h.readEntryFile(f.Name())
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID. A unique ID prefix is
// accepted.
func (h *History) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}
	entries, err := h.List(0)
	if err != nil {
		return nil, err
	}

	var match *Entry
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
		if strings.HasPrefix(entries[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous entry ID %q", id)
			}
			match = &entries[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return match, nil
}

func (h *History) readEntryFile(name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed.
func (h *History) Cleanup(retentionDays int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	files, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading history directory: %w", err)
	}

	var removed int
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(h.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// generateID creates an ID like "apply-2024-06-15T10-30-00-1b4e28ba".
func generateID(op OperationType, at time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%s", op, at.Format("2006-01-02T15-04-05"), hex.EncodeToString(id[:4]))
}
