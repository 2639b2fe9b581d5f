package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	domainerrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

func sampleReport() *probe.Report {
	return &probe.Report{
		ID:           "6f1c1b7e-1111-4222-8333-944455556666",
		Target:       "https://example.com",
		GeneratedAt:  time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		Duration:     1.25,
		CacheEnabled: true,
		Results: map[string]probe.Result{
			"http": probe.Success("HTTP 200 in 12ms, 1 finding(s)", map[string]any{"status_code": 200},
				probe.NewFinding(probe.SeverityMedium, "Missing security header: <Content-Security-Policy>", nil)),
			"dns": probe.FailedWith(probe.CategoryTimeout, "deadline exceeded"),
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" HTML ")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("md")
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedFormat)
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "anomradar_example.com_20250304_050607.pdf", FileName("https://example.com/", FormatPDF, at))
}

func TestJSONRoundTripThroughLoad(t *testing.T) {
	rpt := sampleReport()
	dir := t.TempDir()

	path, err := Save(dir, FormatJSON, rpt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "anomradar_example.com_20250304_050607.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rpt.ID, loaded.ID)
	assert.Equal(t, rpt.Target, loaded.Target)
	assert.True(t, rpt.GeneratedAt.Equal(loaded.GeneratedAt))
	assert.Equal(t, []string{"dns", "http"}, loaded.ProbeNames())
	assert.Equal(t, probe.StatusFailed, loaded.Results["dns"].Status)
	assert.Equal(t, probe.CategoryTimeout, loaded.Results["dns"].Error.Category)
	assert.Equal(t, probe.SeverityMedium, loaded.Results["http"].Findings[0].Severity)
	assert.NotNil(t, loaded.Results["dns"].Findings)
}

func TestLoadRejectsInvalidReports(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage.json":   "{not json",
		"empty.json":     `{"id":"x"}`,
		"badstatus.json": `{"target":"t","results":{"http":{"status":"weird","findings":[]}}}`,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidReport, name)
	}

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Scan report: https://example.com")
	assert.Contains(t, out, "ATTENTION NEEDED")
	assert.Contains(t, out, "success: 1 &middot; partial: 0 &middot; failed: 1")
	assert.Contains(t, out, `class="badge badge-medium"`)
	assert.Contains(t, out, "timeout: deadline exceeded")
	assert.Contains(t, out, "&lt;Content-Security-Policy&gt;")
	assert.Less(t, strings.Index(out, "<h3>dns"), strings.Index(out, "<h3>http"))
}

func TestPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, sampleReport()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))
	assert.Contains(t, buf.String(), "\n  \"target\": \"https://example.com\"")

	assert.ErrorIs(t, Write(&buf, Format("xml"), sampleReport()), domainerrors.ErrUnsupportedFormat)
	assert.ErrorIs(t, Write(&buf, FormatJSON, nil), domainerrors.ErrInvalidReport)
}
