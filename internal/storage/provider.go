// Package storage defines the source document file-system abstraction.
package storage

import (
	"io"

	"github.com/starford/verba/internal/models"
)

// Provider is the interface for source document operations. Paths are
// relative to the documents root and double as document ids.
type Provider interface {
	// List returns metadata for every document under dir.
	List(dir string) ([]models.DocumentMetadata, error)
	// Stat returns metadata for one document.
	Stat(path string) (models.DocumentMetadata, error)
	// Open returns the document content for streaming.
	Open(path string) (io.ReadSeekCloser, error)
	// Write atomically replaces the document at path with content.
	Write(path string, content io.Reader) error
	// Delete removes the document at path.
	Delete(path string) error
	// IsDocument reports whether path has a document extension.
	IsDocument(path string) bool
}
