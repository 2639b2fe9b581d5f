package cmd

import (
	"github.com/fatih/color"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

var statusPainters = map[probe.Status]func(...interface{}) string{
	probe.StatusSuccess: colorSuccess,
	probe.StatusPartial: colorWarn,
	probe.StatusFailed:  colorError,
}

// paintStatus colours a probe status; unknown statuses pass through.
func paintStatus(s probe.Status) string {
	if paint, ok := statusPainters[s]; ok {
		return paint(string(s))
	}
	return string(s)
}

func paintSeverity(s probe.Severity) string {
	switch {
	case s >= probe.SeverityHigh:
		return colorError(s.String())
	case s == probe.SeverityMedium:
		return colorWarn(s.String())
	default:
		return colorInfo(s.String())
	}
}
