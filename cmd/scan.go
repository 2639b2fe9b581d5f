package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Run HTTP, DNS and TLS probes against a target",
	Long: `Run the selected probes concurrently against a domain, host or URL.

Successful probe results are cached for cache.ttl seconds; partial and failed
results are always re-executed. The command exits non-zero only when the scan
request itself is invalid, never because a probe failed.`,
	Example: `  anomradar scan example.com
  anomradar scan https://example.com -s http -s ssl -f html
  anomradar scan example.com --no-cache --scan-timeout 45s`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

type scanOptions struct {
	probes      []string
	output      string
	format      report.Format
	noCache     bool
	timeoutSecs int
	scanTimeout time.Duration
	progress    bool
	telemetry   bool
}

func init() {
	flags := scanCmd.Flags()
	flags.StringSliceP("scanner", "s", nil, "probe to run, repeatable (http, dns, ssl; default all)")
	flags.StringP("output", "o", "", "write the report to this file instead of reports.dir")
	flags.StringP("format", "f", "", "report format: json, html or pdf (default reports.default_format)")
	flags.Bool("no-cache", false, "bypass the result cache for this scan")
	flags.Int("timeout", defaultScannerTimeoutSecs, "per-probe timeout in seconds")
	flags.Duration("scan-timeout", 0, "bound the whole scan, e.g. 45s (0 = no bound)")
	flags.Bool("progress", true, "show live progress")
	flags.Bool("telemetry", false, "append a record to telemetry.jsonl")
	rootCmd.AddCommand(scanCmd)
}

// resolveScanOptions merges flags over config; explicit flags always win.
func resolveScanOptions(cmd *cobra.Command, cfg *Config) (scanOptions, error) {
	flags := cmd.Flags()
	opts := scanOptions{}
	opts.probes, _ = flags.GetStringSlice("scanner")
	opts.output, _ = flags.GetString("output")
	opts.noCache, _ = flags.GetBool("no-cache")
	opts.timeoutSecs, _ = flags.GetInt("timeout")
	opts.scanTimeout, _ = flags.GetDuration("scan-timeout")
	opts.progress, _ = flags.GetBool("progress")
	opts.telemetry, _ = flags.GetBool("telemetry")

	applyIntDefault(flags, "timeout", cfg.Scanner.Timeout, func(v int) { opts.timeoutSecs = v })
	applyBoolDefault(flags, "telemetry", cfg.Telemetry, func(v bool) { opts.telemetry = v })
	if opts.timeoutSecs <= 0 {
		return opts, fmt.Errorf("--timeout must be positive, got %d", opts.timeoutSecs)
	}
	if opts.scanTimeout < 0 {
		return opts, fmt.Errorf("--scan-timeout must not be negative")
	}

	formatName, _ := flags.GetString("format")
	if formatName == "" {
		formatName = cfg.Reports.DefaultFormat
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return opts, err
	}
	opts.format = format

	for i, name := range opts.probes {
		opts.probes[i] = strings.TrimSpace(name)
	}
	return opts, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	appCtx := getAppContext(cmd)
	opts, err := resolveScanOptions(cmd, appCtx.Config)
	if err != nil {
		return err
	}
	appCtx.Config.Scanner.Timeout = opts.timeoutSecs

	services, err := appCtx.Services()
	if err != nil {
		return err
	}
	target := strings.TrimSpace(args[0])
	probes := opts.probes
	if len(probes) == 0 {
		probes = services.Orchestrator.Catalog()
	}

	out := cmd.OutOrStdout()
	orchestrator := services.Orchestrator
	if err := orchestrator.Validate(target, probes); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.scanTimeout)
		defer cancel()
	}

	fmt.Fprintf(out, "%s Scanning %s with %s\n", colorInfo("→"), colorBold(target), strings.Join(probes, ", "))
	var printer *progressPrinter
	if opts.progress {
		printer = newProgressPrinter(out, len(probes), "scan")
		orchestrator = orchestrator.WithProgress(printer.Observe)
		printer.Start()
	}

	rpt, err := orchestrator.Run(ctx, target, probes, !opts.noCache)
	if printer != nil {
		printer.Stop()
	}
	if err != nil {
		return err
	}

	if err := printScanSummary(out, rpt); err != nil {
		return err
	}

	path := opts.output
	if path != "" {
		err = report.WriteFile(path, opts.format, rpt)
	} else {
		path, err = report.Save(appCtx.Config.Reports.Dir, opts.format, rpt)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "%s Report written to %s\n", colorSuccess("✓"), path)

	if opts.telemetry {
		if err := recordTelemetry(telemetryPath(appCtx.DataDir), "scan", rpt); err != nil {
			appCtx.Logger.Warn("failed to record telemetry", zap.Error(err))
		}
	}
	return nil
}

func printScanSummary(w io.Writer, rpt *probe.Report) error {
	fmt.Fprintf(w, "\n%s %s  (%s, report %s)\n", colorBold("Target:"), rpt.Target,
		time.Duration(rpt.Duration*float64(time.Second)).Round(time.Millisecond), rpt.ID)

	table := tablewriter.NewWriter(w)
	table.Header("Probe", "Status", "Findings", "Highest", "Summary")
	for _, name := range rpt.ProbeNames() {
		res := rpt.Results[name]
		highest := "-"
		if sev, ok := res.HighestSeverity(); ok {
			highest = paintSeverity(sev)
		}
		if err := table.Append([]string{
			name,
			paintStatus(res.Status),
			strconv.Itoa(len(res.Findings)),
			highest,
			res.Summary,
		}); err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	counts := rpt.StatusCounts()
	fmt.Fprintf(w, "success: %d · partial: %d · failed: %d\n",
		counts[probe.StatusSuccess], counts[probe.StatusPartial], counts[probe.StatusFailed])

	notable := notableFindings(rpt, probe.SeverityMedium)
	if len(notable) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorBold("Findings (medium and above):"))
		for _, nf := range notable {
			fmt.Fprintf(w, "  [%s] %s: %s\n", paintSeverity(nf.finding.Severity), nf.probe, nf.finding.Message)
		}
	}
	return nil
}

type probeFinding struct {
	probe   string
	finding probe.Finding
}

// notableFindings returns findings at or above min, most severe first.
func notableFindings(rpt *probe.Report, min probe.Severity) []probeFinding {
	var out []probeFinding
	for _, name := range rpt.ProbeNames() {
		for _, f := range rpt.Results[name].Findings {
			if f.Severity >= min {
				out = append(out, probeFinding{probe: name, finding: f})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].finding.Severity > out[j].finding.Severity
	})
	return out
}
