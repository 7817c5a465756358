package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()

	m := New("Pack/Title.pack", "Aoc/0010/Map/A-1.mubin", "Actor/x.frec", "Pack/Title.pack")
	if want := []string{"Actor/x.frec", "Pack/Title.pack"}; !slices.Equal(m.Content, want) {
		t.Errorf("Content = %v, want %v", m.Content, want)
	}
	if want := []string{"Aoc/0010/Map/A-1.mubin"}; !slices.Equal(m.Aoc, want) {
		t.Errorf("Aoc = %v, want %v", m.Aoc, want)
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	if !m.Contains("Aoc/0010/Map/A-1.mubin") || m.Contains("Map/A-1.mubin") {
		t.Error("Contains does not distinguish content from aoc")
	}
}

func TestUnionAndDifference(t *testing.T) {
	t.Parallel()

	previous := New("A", "B", "C")
	union := Union(New("A"), nil, New("C"))

	if got := previous.Difference(union); !slices.Equal(got, []string{"B"}) {
		t.Errorf("Difference() = %v, want [B]", got)
	}
	if got := union.Difference(nil); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("Difference(nil) = %v, want [A C]", got)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	m := New("Actor/x.frec", "Sound/a.bin").WithNames(map[string]string{
		"Actor/x.frec": "Actor/x.sfrec",
		"Sound/a.bin":  "Sound/a.bin",
	})
	if got := m.Name("Actor/x.frec"); got != "Actor/x.sfrec" {
		t.Errorf("Name() = %q, want stored name", got)
	}
	if got := m.Name("Sound/a.bin"); got != "Sound/a.bin" {
		t.Errorf("Name() = %q, want canonical path", got)
	}
	if len(m.Names) != 1 {
		t.Errorf("Names = %v, want only differing entries", m.Names)
	}

	other := New("Actor/x.frec").WithNames(map[string]string{"Actor/x.frec": "Actor/other.sfrec"})
	if got := Union(m, other).Name("Actor/x.frec"); got != "Actor/x.sfrec" {
		t.Errorf("Union().Name() = %q, want first manifest's name", got)
	}

	path := filepath.Join(t.TempDir(), DeployFile)
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name("Actor/x.frec") != "Actor/x.sfrec" {
		t.Errorf("names lost in round trip: %v", got.Names)
	}
}

func TestLoadSave(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "out", DeployFile)
		m := New("Actor/x.frec", "Aoc/0010/y.frec")
		if err := m.Save(path); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !slices.Equal(got.Paths(), m.Paths()) {
			t.Errorf("Load() = %v, want %v", got.Paths(), m.Paths())
		}
	})

	t.Run("missing file is empty", func(t *testing.T) {
		t.Parallel()
		got, err := Load(filepath.Join(t.TempDir(), DeployFile))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Len() != 0 {
			t.Errorf("Len() = %d, want 0", got.Len())
		}
	})

	t.Run("misplaced aoc entry", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte("content: []\naoc: [Map/A-1.mubin]\n"))
		if err == nil {
			t.Fatal("Parse() error = nil, want error")
		}
	})

	t.Run("yaml layout", func(t *testing.T) {
		t.Parallel()
		data, err := New("Actor/x.frec").Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "content:\n    - Actor/x.frec") {
			t.Errorf("unexpected YAML:\n%s", data)
		}
	})
}

func TestPending(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := LoadPending(dir)
	if err != nil {
		t.Fatalf("LoadPending() error = %v", err)
	}
	if !p.Empty() {
		t.Fatal("new pending log is not empty")
	}

	p.Change("B", "A")
	p.Remove("C", "A")
	p.Change("C")
	if err := p.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := LoadPending(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.Files, []string{"B", "C"}) {
		t.Errorf("Files = %v, want [B C]", got.Files)
	}
	if !slices.Equal(got.Delete, []string{"A"}) {
		t.Errorf("Delete = %v, want [A]", got.Delete)
	}

	if err := ClearPending(dir); err != nil {
		t.Fatal(err)
	}
	if err := ClearPending(dir); err != nil {
		t.Errorf("second ClearPending() error = %v", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty dir", func(t *testing.T) {
		t.Parallel()
		if _, err := NewHistory(""); err == nil {
			t.Fatal("NewHistory(\"\") error = nil")
		}
	})

	t.Run("log list get", func(t *testing.T) {
		t.Parallel()
		h, err := NewHistory(filepath.Join(t.TempDir(), "history"))
		if err != nil {
			t.Fatal(err)
		}

		first, err := h.Log(Run{
			Operation: OpApply,
			Files:     []FileRecord{{Path: "a", Size: 10}, {Path: "b", Size: 5}},
			Removed:   []string{"c"},
			SizeTable: []byte("table"),
		})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		if first.Summary.TotalBytes != 15 || first.Summary.Removed != 1 {
			t.Errorf("Summary = %+v", first.Summary)
		}
		if first.SizeTable != Digest([]byte("table")) || len(first.SizeTable) != 64 {
			t.Errorf("SizeTable = %q", first.SizeTable)
		}
		if !strings.HasPrefix(first.ID, "apply-") {
			t.Errorf("ID = %q", first.ID)
		}

		time.Sleep(10 * time.Millisecond)
		second, err := h.Log(Run{Operation: OpApplyPending})
		if err != nil {
			t.Fatal(err)
		}

		entries, err := h.List(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 || entries[0].ID != second.ID {
			t.Fatalf("List() = %v, want newest first", entries)
		}
		if limited, _ := h.List(1); len(limited) != 1 {
			t.Errorf("List(1) returned %d entries", len(limited))
		}

		got, err := h.Get(first.ID)
		if err != nil || got.ID != first.ID {
			t.Fatalf("Get() = %v, %v", got, err)
		}
		if _, err := h.Get("apply-1999"); !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("Get(unknown) error = %v, want ErrEntryNotFound", err)
		}
	})

	t.Run("cleanup", func(t *testing.T) {
		t.Parallel()
		h, err := NewHistory(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		old, err := h.Log(Run{Operation: OpApply})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.Log(Run{Operation: OpApply}); err != nil {
			t.Fatal(err)
		}
		past := time.Now().AddDate(0, 0, -10)
		if err := os.Chtimes(filepath.Join(h.Dir(), old.ID+".json"), past, past); err != nil {
			t.Fatal(err)
		}

		n, err := h.Cleanup(7)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("Cleanup() removed %d, want 1", n)
		}
	})

	t.Run("missing dir lists empty", func(t *testing.T) {
		t.Parallel()
		h, _ := NewHistory(filepath.Join(t.TempDir(), "none"))
		entries, err := h.List(0)
		if err != nil || len(entries) != 0 {
			t.Errorf("List() = %v, %v", entries, err)
		}
	})
}
