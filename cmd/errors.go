package cmd

import (
	"errors"
	"fmt"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// ReportNotFoundError indicates a report path that does not exist.
type ReportNotFoundError struct {
	Path string
}

func (e *ReportNotFoundError) Error() string {
	return fmt.Sprintf("report %s not found", e.Path)
}

// CacheOperationError signals a cache command the configured backend cannot serve.
type CacheOperationError struct {
	Operation string
	Backend   string
}

func (e *CacheOperationError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("cache %s unavailable: caching is disabled", e.Operation)
	}
	return fmt.Sprintf("cache %s is not supported by the %s backend", e.Operation, e.Backend)
}

const (
	exitFailure     = 1
	exitConfigError = 2
)

// exitCode maps command errors to process exit codes. Scan requests that
// cannot be serviced and invalid configuration exit with 2.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case probe.IsConfigurationError(err), errors.Is(err, sharedErrors.ErrValidation):
		return exitConfigError
	default:
		return exitFailure
	}
}
