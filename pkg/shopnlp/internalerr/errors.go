package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Training data quality. Offending examples are skipped, never corrected.
	ErrMisaligned       = errors.New("entity span not aligned to token boundaries")
	ErrMalformedExample = errors.New("malformed training example")

	ErrLabelsFrozen     = errors.New("label set frozen")
	ErrModelUnavailable = errors.New("model unavailable")
)
