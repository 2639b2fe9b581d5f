package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/checker"
	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/report"
	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
)

// busyCacheEntries is the entry count above which doctor suggests a purge.
const busyCacheEntries = 100

// SelfCheckError is returned when at least one self-check step fails.
type SelfCheckError struct {
	Failed int
}

func (e *SelfCheckError) Error() string {
	return fmt.Sprintf("self-check failed: %d check(s) did not pass", e.Failed)
}

type diagnostic struct {
	name string
	note string
	err  error
}

var selfCheckCmd = &cobra.Command{
	Use:   "self-check",
	Short: "Verify configuration, directories, cache, probes and exporters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		results := runSelfCheck(cmd.Context(), appCtx)
		return printSelfCheck(cmd.OutOrStdout(), results, appCtx.Logger)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Show configuration, cache and report health with recommendations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context(), cmd.OutOrStdout(), getAppContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(selfCheckCmd, doctorCmd)
}

func runSelfCheck(ctx context.Context, appCtx *AppContext) []diagnostic {
	if ctx == nil {
		ctx = context.Background()
	}
	results := []diagnostic{{name: "Configuration", err: validateConfig(appCtx.Config)}}
	results = append(results, diagnostic{name: "Directories", err: checkDirectories(appCtx.Config)})

	cacheDiag := diagnostic{name: "Cache"}
	probeDiag := diagnostic{name: "Probes"}
	services, err := appCtx.Services()
	if err != nil {
		cacheDiag.err = err
		probeDiag.err = err
	} else {
		if appCtx.Config.Cache.Enabled {
			cacheDiag.err = checkCacheRoundTrip(ctx, services.Store)
			if cacheDiag.err == nil {
				cacheDiag.err = services.Check(ctx)
			}
		} else {
			cacheDiag.note = "skipped, caching is disabled"
		}
		probeDiag.err = services.Orchestrator.Validate("example.com", checker.Names())
	}
	results = append(results, cacheDiag, probeDiag, diagnostic{name: "Exporters", err: checkExporters()})
	return results
}

// checkDirectories makes sure every configured directory exists and is writable.
func checkDirectories(cfg *Config) error {
	dirs := []string{cfg.Cache.Dir, cfg.Reports.Dir}
	if cfg.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		f, err := os.CreateTemp(dir, ".self-check-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
	}
	return nil
}

func checkCacheRoundTrip(ctx context.Context, store cache.Store) error {
	key := cache.Key("self-check", uuid.NewString())
	want := []byte(`{"self_check":true}`)
	if !store.Set(ctx, key, want, time.Minute) {
		return errors.New("write failed")
	}
	defer store.Delete(ctx, key)

	got, ok := store.Get(ctx, key)
	if !ok {
		return errors.New("read failed")
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("read back %q, want %q", got, want)
	}
	return nil
}

// checkExporters renders a small report in every supported format.
func checkExporters() error {
	rpt := &probe.Report{
		ID:          "self-check",
		Target:      "example.com",
		GeneratedAt: time.Now().UTC(),
		Results: map[string]probe.Result{
			checker.ProbeHTTP: probe.Success("self-check", nil,
				probe.NewFinding(probe.SeverityInfo, "exporter self-check", nil)),
		},
	}
	for _, format := range report.Formats() {
		if err := report.Write(io.Discard, format, rpt); err != nil {
			return fmt.Errorf("%s exporter: %w", format, err)
		}
	}
	return nil
}

func printSelfCheck(w io.Writer, results []diagnostic, logger *zap.Logger) error {
	fmt.Fprintf(w, "%s\n\n", colorBold("anomradar self-check"))
	failed := 0
	for _, d := range results {
		switch {
		case d.err != nil:
			failed++
			fmt.Fprintf(w, "  %s %s: %v\n", colorError("✗"), d.name, d.err)
			if logger != nil {
				logger.Warn("self-check failed", zap.String("check", d.name), zap.Error(d.err))
			}
		case d.note != "":
			fmt.Fprintf(w, "  %s %s (%s)\n", colorWarn("-"), d.name, d.note)
		default:
			fmt.Fprintf(w, "  %s %s\n", colorSuccess("✓"), d.name)
		}
	}
	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%s Some checks failed. Run with --debug for details.\n", colorError("✗"))
		return &SelfCheckError{Failed: failed}
	}
	fmt.Fprintf(w, "%s All checks passed! anomradar %s is ready to use.\n", colorSuccess("✓"), Version)
	return nil
}

func runDoctor(ctx context.Context, w io.Writer, appCtx *AppContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := appCtx.Config
	info := currentVersion()

	fmt.Fprintln(w, colorBold("System"))
	fmt.Fprintf(w, "  Version:  %s\n", info.Version)
	fmt.Fprintf(w, "  Go:       %s\n", info.GoVersion)
	fmt.Fprintf(w, "  Platform: %s\n", info.Platform)

	cacheState := "disabled"
	if cfg.Cache.Enabled {
		cacheState = "enabled"
	}
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = "(stderr only)"
	}
	fmt.Fprintln(w, colorBold("\nConfiguration"))
	fmt.Fprintf(w, "  Cache:       %s (%s backend)\n", cacheState, cfg.Cache.Backend)
	fmt.Fprintf(w, "  Cache TTL:   %ds\n", cfg.Cache.TTL)
	fmt.Fprintf(w, "  Cache dir:   %s\n", cfg.Cache.Dir)
	fmt.Fprintf(w, "  Reports dir: %s\n", cfg.Reports.Dir)
	fmt.Fprintf(w, "  Log file:    %s\n", logFile)

	var recommendations []string
	fmt.Fprintln(w, colorBold("\nCache"))
	if !cfg.Cache.Enabled {
		fmt.Fprintf(w, "  %s\n", colorWarn("caching is disabled"))
		recommendations = append(recommendations, "Enable the cache (cache.enabled: true) to skip repeat probes")
	} else {
		stats, err := doctorCacheStats(ctx, appCtx)
		if err != nil {
			fmt.Fprintf(w, "  %s %v\n", colorError("unavailable:"), err)
			recommendations = append(recommendations, "Run `anomradar self-check` to diagnose the cache backend")
		} else {
			fmt.Fprintf(w, "  Entries: %d (%d expired)\n", stats.Entries, stats.Expired)
			fmt.Fprintf(w, "  Size:    %s\n", formatBytes(stats.Bytes))
			if stats.Expired > 0 {
				recommendations = append(recommendations,
					fmt.Sprintf("%d expired entries can be removed with `anomradar cache purge`", stats.Expired))
			}
			if stats.Entries > busyCacheEntries {
				recommendations = append(recommendations, "The cache has many entries; consider `anomradar cache clear`")
			}
		}
	}

	fmt.Fprintln(w, colorBold("\nReports"))
	if _, err := os.Stat(cfg.Reports.Dir); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "  %s\n", colorWarn("reports directory not yet created"))
	} else {
		reports, err := listReports(cfg.Reports.Dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Total reports: %d\n", len(reports))
	}

	fmt.Fprintln(w, colorBold("\nRecommendations"))
	if len(recommendations) == 0 {
		fmt.Fprintf(w, "  %s Everything looks good!\n", colorSuccess("✓"))
		return nil
	}
	for _, rec := range recommendations {
		fmt.Fprintf(w, "  • %s\n", rec)
	}
	return nil
}

func doctorCacheStats(ctx context.Context, appCtx *AppContext) (cache.Stats, error) {
	services, err := appCtx.Services()
	if err != nil {
		return cache.Stats{}, err
	}
	provider, ok := services.Store.(cache.StatsProvider)
	if !ok {
		return cache.Stats{}, &CacheOperationError{Operation: "stats", Backend: appCtx.Config.Cache.Backend}
	}
	return provider.Stats(ctx)
}
