package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
)

type telemetryRecord struct {
	Timestamp       time.Time         `json:"timestamp"`
	Command         string            `json:"command"`
	ReportID        string            `json:"report_id"`
	Target          string            `json:"target"`
	Probes          []string          `json:"probes"`
	Statuses        map[string]string `json:"statuses"`
	SuccessCount    int               `json:"success_count"`
	PartialCount    int               `json:"partial_count"`
	FailedCount     int               `json:"failed_count"`
	SuccessRate     float64           `json:"success_rate"`
	CacheEnabled    bool              `json:"cache_enabled"`
	DurationSeconds float64           `json:"duration_seconds"`
}

func newTelemetryRecord(command string, rpt *probe.Report) telemetryRecord {
	names := rpt.ProbeNames()
	statuses := make(map[string]string, len(names))
	for _, name := range names {
		statuses[name] = string(rpt.Results[name].Status)
	}
	counts := rpt.StatusCounts()

	successRate := 0.0
	if len(names) > 0 {
		successRate = (float64(counts[probe.StatusSuccess]) / float64(len(names))) * 100
	}

	return telemetryRecord{
		Timestamp:       time.Now().UTC(),
		Command:         command,
		ReportID:        rpt.ID,
		Target:          rpt.Target,
		Probes:          names,
		Statuses:        statuses,
		SuccessCount:    counts[probe.StatusSuccess],
		PartialCount:    counts[probe.StatusPartial],
		FailedCount:     counts[probe.StatusFailed],
		SuccessRate:     successRate,
		CacheEnabled:    rpt.CacheEnabled,
		DurationSeconds: rpt.Duration,
	}
}

// recordTelemetry appends one JSON line describing rpt to path.
func recordTelemetry(path, command string, rpt *probe.Report) error {
	data, err := json.Marshal(newTelemetryRecord(command, rpt))
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	return nil
}
