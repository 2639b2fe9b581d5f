package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/anomradar/internal/report"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal menu for scans, reports and the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), getAppContext(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(ctx context.Context, appCtx *AppContext, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintln(out, "=== AnomRadar ===")
		fmt.Fprintln(out, "[1] Scan a target")
		fmt.Fprintln(out, "[2] List reports")
		fmt.Fprintln(out, "[3] Clear cache")
		fmt.Fprintln(out, "[q] Quit")
		fmt.Fprint(out, "Select: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read selection: %w", err)
			}
			if strings.TrimSpace(input) == "" {
				return nil
			}
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "q", "quit", "exit":
			return nil
		case "":
			continue
		case "1":
			if err := tuiScan(ctx, appCtx, reader, out); err != nil {
				fmt.Fprintf(out, "%s %v\n", colorError("Error:"), err)
			}
		case "2":
			files, err := listReports(appCtx.Config.Reports.Dir)
			if err == nil {
				err = printReportList(out, files, 10)
			}
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", colorError("Error:"), err)
			}
		case "3":
			if err := tuiClearCache(ctx, appCtx, reader, out); err != nil {
				fmt.Fprintf(out, "%s %v\n", colorError("Error:"), err)
			}
		default:
			fmt.Fprintln(out, "Invalid selection")
		}
	}
}

func tuiScan(ctx context.Context, appCtx *AppContext, reader *bufio.Reader, out io.Writer) error {
	fmt.Fprint(out, "Target: ")
	target, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read target: %w", err)
	}
	target = strings.TrimSpace(target)

	services, err := appCtx.Services()
	if err != nil {
		return err
	}
	catalog := services.Orchestrator.Catalog()
	fmt.Fprintf(out, "Probes (comma separated, empty = %s): ", strings.Join(catalog, ", "))
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read probes: %w", err)
	}
	probes := catalog
	if line = strings.TrimSpace(line); line != "" {
		probes = nil
		for _, name := range strings.Split(line, ",") {
			if name = strings.TrimSpace(name); name != "" {
				probes = append(probes, name)
			}
		}
	}

	if err := services.Orchestrator.Validate(target, probes); err != nil {
		return err
	}
	printer := newProgressPrinter(out, len(probes), "scan")
	printer.Start()
	rpt, err := services.Orchestrator.WithProgress(printer.Observe).Run(ctx, target, probes, true)
	printer.Stop()
	if err != nil {
		return err
	}
	if err := printScanSummary(out, rpt); err != nil {
		return err
	}

	format, err := report.ParseFormat(appCtx.Config.Reports.DefaultFormat)
	if err != nil {
		return err
	}
	path, err := report.Save(appCtx.Config.Reports.Dir, format, rpt)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "%s Report written to %s\n", colorSuccess("✓"), path)
	return nil
}

func tuiClearCache(ctx context.Context, appCtx *AppContext, reader *bufio.Reader, out io.Writer) error {
	store, err := cacheStore(appCtx, "clear")
	if err != nil {
		return err
	}
	fmt.Fprint(out, "Clear every cached result? [y/N]: ")
	answer, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Fprintln(out, "Cancelled")
		return nil
	}
	fmt.Fprintf(out, "%s Removed %d cached result(s)\n", colorSuccess("✓"), store.Clear(ctx))
	return nil
}
