package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteCrashReport(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := writeCrashReport(dir, "boom", []byte("goroutine 1 [running]"), now)
	if err != nil {
		t.Fatalf("writeCrashReport failed: %v", err)
	}
	if path != filepath.Join(dir, "last_error.json") {
		t.Fatalf("unexpected path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read crash report: %v", err)
	}
	var rec crashReport
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode crash report: %v", err)
	}
	if rec.Error != "boom" || rec.Stack != "goroutine 1 [running]" || !rec.Timestamp.Equal(now) {
		t.Fatalf("unexpected crash report: %+v", rec)
	}
}

func TestWriteCrashReportOverwrites(t *testing.T) {
	dir := t.TempDir()
	if _, err := writeCrashReport(dir, "first", nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	path, err := writeCrashReport(dir, "second", nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var rec crashReport
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Error != "second" {
		t.Fatalf("expected latest crash to win, got %q", rec.Error)
	}
}

func TestWriteCrashReportMissingDir(t *testing.T) {
	if _, err := writeCrashReport(filepath.Join(t.TempDir(), "missing"), "boom", nil, time.Now()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
