package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty questions, empty documents, and malformed turns.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidParameters is returned for chunking parameters that cannot make progress.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrBackendUnavailable means a backend could not serve the call; fallback continues.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrIndexEmpty means the backend holds no index. It matches ErrBackendUnavailable.
	ErrIndexEmpty = fmt.Errorf("%w: index is empty", ErrBackendUnavailable)

	// ErrAllBackendsUnavailable means every configured backend failed with ErrBackendUnavailable.
	ErrAllBackendsUnavailable = errors.New("all backends unavailable")

	// ErrNoIndexAvailable means nothing was ever indexed.
	ErrNoIndexAvailable = errors.New("no index available")

	// ErrIndexCorrupt stops fallback.
	ErrIndexCorrupt = errors.New("index corrupt")

	ErrEmbeddingFailed  = errors.New("embedding failed")
	ErrGenerationFailed = errors.New("generation failed")
	ErrNotFound         = errors.New("not found")
)
