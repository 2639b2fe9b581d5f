package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/api"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/infrastructure/metrics"
	"github.com/khanhnv2901/anomradar/internal/report"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run AnomRadar as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		opts := resolveServeOptions(cmd, appCtx.Config)

		app, err := newAPIApp(appCtx, opts)
		if err != nil {
			return err
		}
		defer app.close()

		httpServer := &http.Server{
			Addr:              opts.addr,
			Handler:           app.server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
			// No WriteTimeout: /api/v1/scans/stream holds the connection open.
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		// Start server in a goroutine
		go func() {
			fmt.Printf("%s API server listening on %s (reports dir: %s)\n", colorInfo("→"), opts.addr, appCtx.Config.Reports.Dir)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		// Channel to listen for interrupt signals
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		// Block until we receive a signal or an error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			// Create context with timeout for shutdown
			ctx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
			defer cancel()

			// Attempt graceful shutdown
			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			app.scans.Wait()

			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

type serveOptions struct {
	addr            string
	authToken       string
	shutdownTimeout time.Duration
	scanTimeout     time.Duration
	corsOrigins     []string
	rateLimit       int
	rateBurst       int
	maxJobs         int
	jobRetention    time.Duration
	saveReports     bool
}

func init() {
	serveCmd.Flags().String("addr", defaultAPIAddr, "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret required for mutating requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().Duration("scan-timeout", 2*time.Minute, "Upper bound for one API scan (0 = none)")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	serveCmd.Flags().Int("max-jobs", 1000, "Scan jobs kept in memory")
	serveCmd.Flags().Duration("job-retention", 24*time.Hour, "Drop finished jobs older than this (0 = keep until max-jobs)")
	serveCmd.Flags().Bool("save-reports", true, "Write each finished scan as JSON into reports.dir")
	rootCmd.AddCommand(serveCmd)
}

func resolveServeOptions(cmd *cobra.Command, cfg *Config) serveOptions {
	flags := cmd.Flags()
	setStringFlagIfUnset(flags, "addr", cfg.API.Addr)
	setStringFlagIfUnset(flags, "auth-token", cfg.API.AuthToken)

	opts := serveOptions{}
	opts.addr, _ = flags.GetString("addr")
	opts.authToken, _ = flags.GetString("auth-token")
	opts.shutdownTimeout, _ = flags.GetDuration("shutdown-timeout")
	opts.scanTimeout, _ = flags.GetDuration("scan-timeout")
	opts.corsOrigins, _ = flags.GetStringSlice("cors-origins")
	opts.rateLimit, _ = flags.GetInt("rate-limit")
	opts.rateBurst, _ = flags.GetInt("rate-burst")
	opts.maxJobs, _ = flags.GetInt("max-jobs")
	opts.jobRetention, _ = flags.GetDuration("job-retention")
	opts.saveReports, _ = flags.GetBool("save-reports")

	applyIntDefault(flags, "rate-limit", cfg.API.RateLimit, func(v int) { opts.rateLimit = v })
	applyIntDefault(flags, "rate-burst", cfg.API.RateBurst, func(v int) { opts.rateBurst = v })
	if flag := flags.Lookup("cors-origins"); (flag == nil || !flag.Changed) && len(cfg.API.CORSOrigins) > 0 {
		opts.corsOrigins = append([]string(nil), cfg.API.CORSOrigins...)
	}
	return opts
}

// apiApp is the assembled API: HTTP handler plus the background job state.
type apiApp struct {
	server *api.Server
	scans  *api.ScanJobs
	jobs   *api.JobManager
}

func newAPIApp(appCtx *AppContext, opts serveOptions) (*apiApp, error) {
	if appCtx.Metrics == nil {
		appCtx.Metrics = metrics.NewPrometheusMetrics()
	}
	services, err := appCtx.Services()
	if err != nil {
		return nil, err
	}

	logger := appCtx.Logger.Named("api")
	jobs := api.NewJobManager(api.WithJobRetention(opts.jobRetention))
	jobs.SetMaxJobs(opts.maxJobs)

	scanOpts := []api.ScanJobsOption{
		api.WithScanTimeout(opts.scanTimeout),
		api.WithJobLogger(logger),
	}
	if opts.saveReports {
		reportsDir := appCtx.Config.Reports.Dir
		scanOpts = append(scanOpts, api.WithReportHook(func(rpt *probe.Report) {
			path, err := report.Save(reportsDir, report.FormatJSON, rpt)
			if err != nil {
				logger.Warn("failed to save scan report", zap.String("report_id", rpt.ID), zap.Error(err))
				return
			}
			logger.Debug("scan report saved", zap.String("path", path))
		}))
	}
	scans := api.NewScanJobs(jobs, services.Orchestrator, scanOpts...)

	server := api.NewServer(api.Config{
		Scans:       scans,
		Cache:       services.Store,
		Health:      services,
		Metrics:     appCtx.Metrics.Handler(),
		Observer:    appCtx.Metrics,
		AuthToken:   opts.authToken,
		Logger:      logger,
		CORSOrigins: opts.corsOrigins,
		RateLimit:   opts.rateLimit,
		RateBurst:   opts.rateBurst,
	})
	return &apiApp{server: server, scans: scans, jobs: jobs}, nil
}

func (a *apiApp) close() {
	a.server.Close()
	a.jobs.Close()
}
