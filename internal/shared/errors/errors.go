package errors

import "errors"

// Domain errors
var (
	// Scan errors
	ErrEmptyTarget       = errors.New("target cannot be empty")
	ErrNoProbes          = errors.New("at least one probe must be requested")
	ErrDuplicateProbe    = errors.New("probe already registered")
	ErrScanNotFound      = errors.New("scan not found")
	ErrInvalidReport     = errors.New("invalid scan report")
	ErrUnsupportedFormat = errors.New("unsupported report format")

	// Cache errors
	ErrCacheUnavailable = errors.New("cache backend unavailable")
	ErrUnknownBackend   = errors.New("unknown cache backend")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
