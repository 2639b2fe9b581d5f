package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
)

type crashReport struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Error     string    `json:"error"`
	Stack     string    `json:"stack"`
}

// handleCrash turns an unexpected panic into last_error.json and exit code 1.
func handleCrash() {
	r := recover()
	if r == nil {
		return
	}
	dir, err := getDataDir()
	if err == nil {
		var path string
		path, err = writeCrashReport(dir, r, debug.Stack(), time.Now())
		if err == nil {
			fmt.Fprintf(os.Stderr, "%s unexpected error: %v\ndetails written to %s\n", colorError("✗"), r, path)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "%s unexpected error: %v (crash report not saved: %v)\n", colorError("✗"), r, err)
	os.Exit(1)
}

func writeCrashReport(dir string, recovered any, stack []byte, now time.Time) (string, error) {
	rec := crashReport{
		Timestamp: now.UTC(),
		Version:   Version,
		Error:     fmt.Sprint(recovered),
		Stack:     string(stack),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	path := crashReportPath(dir)
	if err := os.WriteFile(path, data, consts.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}
