package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
	"github.com/khanhnv2901/anomradar/internal/shared/security"
)

// validateReportName ensures a report file name can't be used for path traversal.
// Names are joined onto reports.dir, so reject separators.
func validateReportName(name string) error {
	switch name {
	case "":
		return errors.New("report name is required")
	case ".", "..":
		return fmt.Errorf("report name %q is reserved", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("report name %q must not contain path separators", name)
	}
	return nil
}

func resolveReportPath(reportsDir, name string) (string, error) {
	if err := validateReportName(name); err != nil {
		return "", err
	}
	return security.ResolveWithin(reportsDir, name)
}

func ensureReportsDir(reportsDir string) (string, error) {
	if strings.TrimSpace(reportsDir) == "" {
		return "", errors.New("reports directory is not configured")
	}
	if err := os.MkdirAll(reportsDir, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}
	return reportsDir, nil
}
