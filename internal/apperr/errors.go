// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrInvariant marks a rejected write that would break a domain invariant,
	// e.g. a reviewer check without the preparer check.
	ErrInvariant = errors.New("invariant violation")
)
