package filestore

import "errors"

// Sentinel errors for error classification.
var (
	// ErrInvalidIdentifier indicates a file name MATLAB could not load, or
	// one that would escape the managed root.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNotFound indicates the file does not exist under the managed root.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create without overwrite hit an existing file.
	ErrAlreadyExists = errors.New("already exists")

	// ErrIOFailure indicates a permission or disk error.
	ErrIOFailure = errors.New("I/O failure")
)
