package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khanhnv2901/anomradar/internal/application"
	"github.com/khanhnv2901/anomradar/internal/infrastructure/metrics"
	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
)

var (
	cfgFile   string
	debugMode bool

	globalAppContext *AppContext
)

// AppContext carries what every command needs once the config is loaded.
type AppContext struct {
	Logger  *zap.Logger
	Config  *Config
	DataDir string
	Debug   bool
	// Metrics, when set before Services is first called, records scan metrics.
	Metrics *metrics.PrometheusMetrics

	servicesOnce sync.Once
	services     *application.Container
	servicesErr  error
	closeLog     func()
}

// Services builds the cache store and orchestrator on first use.
func (a *AppContext) Services() (*application.Container, error) {
	a.servicesOnce.Do(func() {
		a.services, a.servicesErr = application.NewContainer(application.Options{
			CacheEnabled: a.Config.Cache.Enabled,
			CacheBackend: a.Config.Cache.Backend,
			CacheDir:     a.Config.Cache.Dir,
			Probes:       a.Config.CheckerConfig(),
			Scan:         a.Config.ScanConfig(),
			Logger:       a.Logger,
			Metrics:      a.Metrics,
		})
	})
	return a.services, a.servicesErr
}

// Close releases the services and flushes the logger.
func (a *AppContext) Close() error {
	var err error
	if a.services != nil {
		err = multierr.Append(err, a.services.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	return err
}

type appContextKey struct{}

var rootCmd = &cobra.Command{
	Use:           "anomradar",
	Short:         "Passive HTTP, DNS and TLS reconnaissance with a local result cache",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cfgFile, debugMode)
		if err != nil {
			return err
		}
		storeAppContext(cmd, appCtx)
		appCtx.Logger.Debug("config loaded",
			zap.String("data_dir", appCtx.DataDir),
			zap.String("cache_backend", appCtx.Config.Cache.Backend),
			zap.Bool("cache_enabled", appCtx.Config.Cache.Enabled))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appCtx := getAppContext(cmd); appCtx != nil {
			return appCtx.Close()
		}
		return nil
	},
}

func newAppContext(cfgFile string, debug bool) (*AppContext, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(viper.GetViper(), cfgFile, dataDir)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := buildLogger(debug, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	return &AppContext{
		Logger:   logger,
		Config:   cfg,
		DataDir:  dataDir,
		Debug:    debug,
		closeLog: closeLog,
	}, nil
}

// buildLogger writes warnings and above to stderr and everything at level to
// the log file. Debug mode uses the development console encoder on stderr.
func buildLogger(debug bool, level, file string) (*zap.Logger, func(), error) {
	fileLevel, err := parseLogLevel(level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewJSONEncoder(encCfg)
	consoleLevel := zapcore.WarnLevel
	opts := []zap.Option{zap.AddCaller()}
	if debug {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		consoleLevel = zapcore.DebugLevel
		fileLevel = zapcore.DebugLevel
		opts = append(opts, zap.Development())
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel)}
	closeLog := func() {}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), consts.DefaultDirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Clean(file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), fileLevel))
		closeLog = func() { _ = f.Close() }
	}
	return zap.New(zapcore.NewTee(cores...), opts...), closeLog, nil
}

func parseLogLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid logging.level %q: %w", level, err)
	}
	return lvl, nil
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil && cmd.Context() != nil {
		if appCtx, ok := cmd.Context().Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

func Execute() {
	defer handleCrash()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.anomradar/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}
