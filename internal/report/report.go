// Package report renders scan reports to JSON, HTML and PDF and reads saved
// JSON reports back.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
	domainerrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
	"github.com/khanhnv2901/anomradar/internal/shared/security"
)

// Format is an output encoding for a report.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatJSON, FormatHTML, FormatPDF}
}

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case FormatJSON, FormatHTML, FormatPDF:
		return f, nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s (must be json, html, or pdf)", domainerrors.ErrUnsupportedFormat, name)
}

// Write renders rpt in the given format.
func Write(w io.Writer, format Format, rpt *probe.Report) error {
	if rpt == nil {
		return domainerrors.ErrInvalidReport
	}
	switch format {
	case FormatJSON:
		return JSON(w, rpt)
	case FormatHTML:
		return HTML(w, rpt)
	case FormatPDF:
		return PDF(w, rpt)
	default:
		return fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedFormat, format)
	}
}

// FileName builds anomradar_<host>_<timestamp>.<ext>.
func FileName(target string, format Format, at time.Time) string {
	host := security.SafeFileComponent(target)
	return fmt.Sprintf("anomradar_%s_%s.%s", host, at.UTC().Format("20060102_150405"), format)
}

// Save writes rpt into dir and returns the file path.
func Save(dir string, format Format, rpt *probe.Report) (string, error) {
	if rpt == nil {
		return "", domainerrors.ErrInvalidReport
	}
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}
	path, err := security.ResolveWithin(dir, FileName(rpt.Target, format, rpt.GeneratedAt))
	if err != nil {
		return "", err
	}
	return path, WriteFile(path, format, rpt)
}

// WriteFile renders rpt to path, replacing any existing file.
func WriteFile(path string, format Format, rpt *probe.Report) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := Write(f, format, rpt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads a JSON report written by JSON or Save.
func Load(path string) (*probe.Report, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rpt probe.Report
	if err := json.Unmarshal(data, &rpt); err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidReport, err)
	}
	if rpt.Target == "" || rpt.Results == nil {
		return nil, fmt.Errorf("%w: missing target or results", domainerrors.ErrInvalidReport)
	}
	for name, res := range rpt.Results {
		if err := res.Validate(); err != nil {
			return nil, fmt.Errorf("%w: probe %s: %v", domainerrors.ErrInvalidReport, name, err)
		}
		if res.Findings == nil {
			res.Findings = []probe.Finding{}
			rpt.Results[name] = res
		}
	}
	return &rpt, nil
}

// JSON writes the report indented by two spaces.
func JSON(w io.Writer, rpt *probe.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rpt); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func formatDurationLabel(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.1f min", seconds/60)
}

func severityBadgeClass(s probe.Severity) string {
	return "badge-" + s.String()
}

func statusBadgeClass(s probe.Status) string {
	switch s {
	case probe.StatusSuccess:
		return "status-success"
	case probe.StatusPartial:
		return "status-partial"
	default:
		return "status-failed"
	}
}
