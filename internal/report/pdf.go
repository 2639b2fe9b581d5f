package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

var severityFill = map[probe.Severity][3]int{
	probe.SeverityCritical: {123, 31, 162},
	probe.SeverityHigh:     {211, 47, 47},
	probe.SeverityMedium:   {245, 124, 0},
	probe.SeverityLow:      {25, 118, 210},
	probe.SeverityInfo:     {96, 125, 139},
}

// PDF renders a printable report with one findings table per probe.
func PDF(w io.Writer, rpt *probe.Report) error {
	data := buildTemplateData(rpt)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Scan Report: %s", rpt.Target)), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Report ID: %s", rpt.ID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", rpt.GeneratedAt.UTC().Format(time.RFC1123)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Duration: %s | Cache: %t", formatDurationLabel(rpt.Duration), rpt.CacheEnabled), "", 1, "", false, 0, "")
	pdf.Ln(5)

	// Summary section
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Success: %d | Partial: %d | Failed: %d",
		data.Statuses["success"], data.Statuses["partial"], data.Statuses["failed"]), "", 1, "", false, 0, "")
	parts := make([]string, 0, len(data.Severities))
	for _, sc := range data.Severities {
		parts = append(parts, fmt.Sprintf("%s: %d", strings.ToUpper(sc.Severity.String()), sc.Count))
	}
	pdf.CellFormat(0, 6, strings.Join(parts, " | "), "", 1, "", false, 0, "")
	pdf.Ln(5)

	for _, section := range data.Probes {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		res := section.Result

		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s - %s", section.Name, strings.ToUpper(string(res.Status))), "", 1, "", true, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(res.Summary), "", "", false)
		if res.Error != nil {
			pdf.SetFont("Arial", "I", 9)
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("Error (%s): %s", res.Error.Category, res.Error.Message)), "", "", false)
		}

		if len(res.Findings) == 0 {
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 5, "No findings.", "", 1, "", false, 0, "")
			pdf.Ln(3)
			continue
		}

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(25, 6, "Severity", "1", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, "Finding", "1", 1, "", false, 0, "")
		for _, f := range res.Findings {
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			fill := severityFill[f.Severity]
			pdf.SetFillColor(fill[0], fill[1], fill[2])
			pdf.SetTextColor(255, 255, 255)
			pdf.SetFont("Arial", "B", 8)
			pdf.CellFormat(25, 5, strings.ToUpper(f.Severity.String()), "1", 0, "C", true, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont("Arial", "", 8)
			pdf.CellFormat(0, 5, tr(truncate(f.Message, 110)), "1", 1, "", false, 0, "")
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
