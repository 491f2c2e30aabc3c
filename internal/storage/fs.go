package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/checksum"
	"github.com/starford/verba/internal/models"
)

// DefaultExtensions are the document types served when none are configured.
var DefaultExtensions = []string{".pdf"}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the documents directory
	exts []string
}

var _ Provider = (*FS)(nil)

// NewFS creates a provider rooted at root, which must already exist. Only
// files with one of exts (case-insensitive) are documents.
func NewFS(root string, exts ...string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	return &FS{root: abs, exts: norm}, nil
}

// Root returns the absolute documents directory.
func (f *FS) Root() string { return f.root }

// IsDocument implements Provider.
func (f *FS) IsDocument(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".verba-tmp-") {
		return false
	}
	return slices.Contains(f.exts, strings.ToLower(filepath.Ext(name)))
}

// safePath resolves a relative path against the root and rejects any result
// that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidInput)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes documents root: %s: %w", rel, apperr.ErrInvalidInput)
	}
	return abs, nil
}

func (f *FS) documentPath(rel string) (string, error) {
	if !f.IsDocument(rel) {
		return "", fmt.Errorf("storage: %s is not a document: %w", rel, apperr.ErrInvalidInput)
	}
	return f.safePath(rel)
}

func (f *FS) metadata(abs string, info fs.FileInfo) (models.DocumentMetadata, error) {
	file, err := os.Open(abs)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	defer file.Close()
	sum, err := checksum.SumReader(file)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	rel, _ := filepath.Rel(f.root, abs)
	return models.DocumentMetadata{
		Path:      filepath.ToSlash(rel),
		Checksum:  sum,
		UpdatedAt: info.ModTime(),
	}, nil
}

// List walks dir and returns metadata for every document.
func (f *FS) List(dir string) ([]models.DocumentMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.DocumentMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !f.IsDocument(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		m, err := f.metadata(p, info)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Stat returns metadata for one document.
func (f *FS) Stat(path string) (models.DocumentMetadata, error) {
	abs, err := f.documentPath(path)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DocumentMetadata{}, fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	m, err := f.metadata(abs, info)
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return m, nil
}

// Open returns the document for streaming. The caller closes it.
func (f *FS) Open(path string) (io.ReadSeekCloser, error) {
	abs, err := f.documentPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return file, nil
}

// Write atomically replaces a document: tmp file, fsync, rename.
func (f *FS) Write(path string, content io.Reader) error {
	abs, err := f.documentPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".verba-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a document.
func (f *FS) Delete(path string) error {
	abs, err := f.documentPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}
