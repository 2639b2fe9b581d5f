package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
)

// dataDirEnvVar overrides the default ~/.anomradar data directory.
const dataDirEnvVar = "ANOMRADAR_HOME"

const (
	crashReportFile = "last_error.json"
	telemetryFile   = "telemetry.jsonl"
)

// getDataDir returns the directory holding config, cache, reports and logs,
// creating it if needed.
func getDataDir() (string, error) {
	baseDir := os.Getenv(dataDirEnvVar)
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".anomradar")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(baseDir, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return baseDir, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

func crashReportPath(dataDir string) string {
	return filepath.Join(dataDir, crashReportFile)
}

func telemetryPath(dataDir string) string {
	return filepath.Join(dataDir, telemetryFile)
}
