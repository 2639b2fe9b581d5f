package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

//go:embed templates/report.html
var templateFS embed.FS

var htmlReportTemplate = template.Must(
	template.New("report.html").Funcs(template.FuncMap{
		"formatDuration": formatDurationLabel,
		"formatTime":     func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
		"severityClass":  severityBadgeClass,
		"statusClass":    statusBadgeClass,
		"upper":          strings.ToUpper,
	}).ParseFS(templateFS, "templates/report.html"),
)

type severityCount struct {
	Severity probe.Severity
	Count    int
}

type probeSection struct {
	Name   string
	Result probe.Result
}

type templateData struct {
	Report     *probe.Report
	Healthy    bool
	Statuses   map[string]int
	Severities []severityCount
	Probes     []probeSection
}

func buildTemplateData(rpt *probe.Report) templateData {
	counts := rpt.SeverityCounts()
	severities := make([]severityCount, 0, 5)
	for s := probe.SeverityCritical; s >= probe.SeverityInfo; s-- {
		severities = append(severities, severityCount{Severity: s, Count: counts[s]})
	}

	statuses := make(map[string]int, 3)
	for status, n := range rpt.StatusCounts() {
		statuses[string(status)] = n
	}

	names := rpt.ProbeNames()
	sections := make([]probeSection, 0, len(names))
	for _, name := range names {
		sections = append(sections, probeSection{Name: name, Result: rpt.Results[name]})
	}

	return templateData{
		Report:     rpt,
		Healthy:    rpt.Healthy(),
		Statuses:   statuses,
		Severities: severities,
		Probes:     sections,
	}
}

// HTML renders a standalone HTML page.
func HTML(w io.Writer, rpt *probe.Report) error {
	if err := htmlReportTemplate.Execute(w, buildTemplateData(rpt)); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
