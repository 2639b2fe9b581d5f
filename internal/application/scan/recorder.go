package scan

import (
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// Recorder receives scan telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CacheLookup(probeName string, hit bool)
	CacheWrite(probeName string, ok bool)
	ProbeFinished(probeName string, status probe.Status, category probe.Category, elapsed time.Duration)
	ScanFinished(probeCount int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, bool)                                          {}
func (nopRecorder) CacheWrite(string, bool)                                           {}
func (nopRecorder) ProbeFinished(string, probe.Status, probe.Category, time.Duration) {}
func (nopRecorder) ScanFinished(int, time.Duration)                                   {}
