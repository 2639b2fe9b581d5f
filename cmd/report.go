package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/khanhnv2901/anomradar/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <report.json>",
	Short: "Re-render a saved JSON report as json, html or pdf",
	Example: `  anomradar report ~/.anomradar/reports/anomradar_example.com_20250101_120000.json -f html
  anomradar report anomradar_example.com_20250101_120000.json -f pdf -o /tmp/example.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		if formatName == "" {
			formatName = appCtx.Config.Reports.DefaultFormat
		}
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}

		source, err := locateReport(appCtx.Config.Reports.Dir, args[0])
		if err != nil {
			return err
		}
		rpt, err := report.Load(source)
		if err != nil {
			return err
		}

		if output == "" {
			dir, err := ensureReportsDir(appCtx.Config.Reports.Dir)
			if err != nil {
				return err
			}
			output, err = resolveReportPath(dir, report.FileName(rpt.Target, format, rpt.GeneratedAt))
			if err != nil {
				return err
			}
		}
		if sameFile(source, output) {
			return fmt.Errorf("refusing to overwrite the source report %s", source)
		}
		if err := report.WriteFile(output, format, rpt); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s report written to %s\n", colorSuccess("✓"), strings.ToUpper(string(format)), output)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		limit, _ := cmd.Flags().GetInt("limit")
		files, err := listReports(appCtx.Config.Reports.Dir)
		if err != nil {
			return err
		}
		return printReportList(cmd.OutOrStdout(), files, limit)
	},
}

func init() {
	reportCmd.Flags().StringP("format", "f", "", "output format: json, html or pdf (default reports.default_format)")
	reportCmd.Flags().StringP("output", "o", "", "output file (default: reports.dir)")
	reportListCmd.Flags().Int("limit", 20, "maximum number of reports to show (0 = all)")
	reportCmd.AddCommand(reportListCmd)
	rootCmd.AddCommand(reportCmd)
}

// locateReport accepts a path, or a bare file name inside reportsDir.
func locateReport(reportsDir, arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}
	if validateReportName(arg) == nil && reportsDir != "" {
		path, err := resolveReportPath(reportsDir, arg)
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return path, nil
			}
		}
	}
	return "", &ReportNotFoundError{Path: arg}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

type reportFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// listReports returns the report files in dir, newest first. A missing
// directory simply has no reports.
func listReports(dir string) ([]reportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reports directory: %w", err)
	}

	var files []reportFile
	for _, entry := range entries {
		if entry.IsDir() || !isReportFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, reportFile{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

func isReportFile(name string) bool {
	if !strings.HasPrefix(name, "anomradar_") {
		return false
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	_, err := report.ParseFormat(ext)
	return ext != "" && err == nil
}

func printReportList(w io.Writer, files []reportFile, limit int) error {
	if len(files) == 0 {
		fmt.Fprintln(w, "No reports found. Run `anomradar scan <target>` to create one.")
		return nil
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	table := tablewriter.NewWriter(w)
	table.Header("#", "Report", "Size", "Modified")
	for i, f := range files {
		if err := table.Append([]string{
			fmt.Sprintf("%d", i+1),
			f.Name,
			formatBytes(f.Size),
			f.ModTime.Local().Format("2006-01-02 15:04:05"),
		}); err != nil {
			return fmt.Errorf("failed to render report list: %w", err)
		}
	}
	return table.Render()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
