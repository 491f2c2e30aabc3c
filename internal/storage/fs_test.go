package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/checksum"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func write(t *testing.T, s *FS, path, content string) {
	t.Helper()
	if err := s.Write(path, strings.NewReader(content)); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
}

func read(t *testing.T, s *FS, path string) string {
	t.Helper()
	r, err := s.Open(path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestWriteAndOpen(t *testing.T) {
	s := tempRoot(t)
	write(t, s, "proc-1/sentenca.pdf", "%PDF-1.7 body")
	if got := read(t, s, "proc-1/sentenca.pdf"); got != "%PDF-1.7 body" {
		t.Errorf("content = %q", got)
	}
}

func TestStat(t *testing.T) {
	s := tempRoot(t)
	write(t, s, "a.pdf", "one")
	m, err := s.Stat("a.pdf")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if m.Path != "a.pdf" || m.Checksum != checksum.Sum([]byte("one")) {
		t.Errorf("meta = %+v", m)
	}
	if _, err := s.Stat("missing.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestRejectsNonDocuments(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("notes.txt", bytes.NewReader([]byte("x"))); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("write err = %v, want ErrInvalidInput", err)
	}
}

func TestExtensions(t *testing.T) {
	s, err := NewFS(t.TempDir(), "PDF", ".tiff")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	for path, want := range map[string]bool{
		"a.pdf":              true,
		"b.PDF":              true,
		"c.tiff":             true,
		"d.md":               false,
		".verba-tmp-123.pdf": false,
	} {
		if got := s.IsDocument(path); got != want {
			t.Errorf("IsDocument(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	write(t, s, "del.pdf", "bye")
	if err := s.Delete("del.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open("del.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("open deleted err = %v", err)
	}
	if err := s.Delete("del.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestList(t *testing.T) {
	s := tempRoot(t)
	write(t, s, "a.pdf", "a")
	write(t, s, "sub/b.pdf", "b")
	if err := os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a document"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	paths := map[string]bool{}
	for _, it := range items {
		paths[it.Path] = true
	}
	if !paths["a.pdf"] || !paths["sub/b.pdf"] {
		t.Errorf("paths = %v", paths)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd.pdf", "../outside.pdf", "/etc/shadow.pdf"} {
		if _, err := s.Open(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, strings.NewReader("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempRoot(t)
	write(t, s, "atomic.pdf", "original")
	write(t, s, "atomic.pdf", "updated")
	if got := read(t, s, "atomic.pdf"); got != "updated" {
		t.Errorf("content = %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".verba-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "verba-test-*")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
