package scan

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// Config is the policy the orchestrator applies to every scan.
type Config struct {
	TTL           time.Duration            // cache lifetime of successful results
	Timeout       time.Duration            // default per-probe timeout
	ProbeTimeouts map[string]time.Duration // per-probe overrides
	Concurrency   int                      // probes of one scan running at once
	RateLimit     float64                  // probe starts per second across scans, 0 = unlimited
}

// ProgressFunc is called once per probe as soon as it reaches a terminal
// state. Calls may be concurrent.
type ProgressFunc func(name string, out Outcome)

// Orchestrator fans a scan out to one runner per requested probe and joins
// the outcomes into a probe.Report.
type Orchestrator struct {
	registry *Registry
	store    cache.Store
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	limiter  *rate.Limiter
	progress ProgressFunc
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) {
		if rec != nil {
			o.recorder = rec
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NewOrchestrator wires the registry and store. A nil store disables caching
// regardless of what Run is asked for.
func NewOrchestrator(registry *Registry, store cache.Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultProbeTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = constants.DefaultConcurrency
	}
	if store == nil {
		store = cache.Nop{}
	}

	o := &Orchestrator{
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithProgress returns a copy of o that reports each finished probe to fn.
func (o *Orchestrator) WithProgress(fn ProgressFunc) *Orchestrator {
	clone := *o
	clone.progress = fn
	return &clone
}

// Catalog lists the registered probe names.
func (o *Orchestrator) Catalog() []string {
	return o.registry.Names()
}

// Store exposes the cache backing this orchestrator for maintenance commands.
func (o *Orchestrator) Store() cache.Store {
	return o.store
}

// Validate applies the request checks of Run without scanning anything.
func (o *Orchestrator) Validate(target string, probeNames []string) error {
	_, err := o.resolve(strings.TrimSpace(target), probeNames)
	return err
}

func (o *Orchestrator) resolve(target string, probeNames []string) ([]probe.Probe, error) {
	if target == "" {
		return nil, &probe.ConfigurationError{Field: "target", Message: sharedErrors.ErrEmptyTarget.Error()}
	}
	return o.registry.Resolve(probeNames)
}

// Run scans target with every probe in probeNames. The only error it returns
// is a *probe.ConfigurationError, raised before any probe starts. Every
// requested probe appears in the report exactly once.
func (o *Orchestrator) Run(ctx context.Context, target string, probeNames []string, cacheEnabled bool) (*probe.Report, error) {
	target = strings.TrimSpace(target)
	probes, err := o.resolve(target, probeNames)
	if err != nil {
		return nil, err
	}

	report := &probe.Report{
		ID:           o.newID(),
		Target:       probe.NormalizeTarget(target),
		CacheEnabled: cacheEnabled,
		Results:      make(map[string]probe.Result, len(probes)),
	}
	log := o.logger.With(zap.String("scan_id", report.ID), zap.String("target", report.Target))
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.Name()
	}
	log.Info("scan started", zap.Strings("probes", names), zap.Bool("cache", cacheEnabled))

	start := o.now()
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, p := range probes {
		g.Go(func() error {
			out := o.runGuarded(ctx, p, target, cacheEnabled, log)
			mu.Lock()
			report.Results[p.Name()] = out.Result
			mu.Unlock()
			o.notify(p.Name(), out, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range names {
		if _, ok := report.Results[name]; !ok {
			report.Results[name] = probe.FailedWith(probe.CategoryUnknown, "probe produced no result")
		}
	}

	elapsed := o.now().Sub(start)
	report.GeneratedAt = o.now().UTC()
	report.Duration = elapsed.Seconds()
	o.recorder.ScanFinished(len(probes), elapsed)

	counts := report.StatusCounts()
	log.Info("scan finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("success", counts[probe.StatusSuccess]),
		zap.Int("partial", counts[probe.StatusPartial]),
		zap.Int("failed", counts[probe.StatusFailed]))
	return report, nil
}

// runGuarded runs one probe and turns a panic anywhere below it into a
// Failed result.
func (o *Orchestrator) runGuarded(ctx context.Context, p probe.Probe, target string, cacheEnabled bool, log *zap.Logger) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("probe runner panicked",
				zap.String("probe", p.Name()),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			out = Outcome{Result: probe.FailedWith(probe.CategoryUnknown,
				fmt.Sprintf("probe %s crashed: %v", p.Name(), rec))}
		}
	}()
	return o.runOne(ctx, p, target, cacheEnabled)
}

// notify hands out to the progress callback. A panicking callback is logged
// and never affects the recorded result.
func (o *Orchestrator) notify(name string, out Outcome, log *zap.Logger) {
	if o.progress == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("progress callback panicked", zap.String("probe", name), zap.Any("panic", rec))
		}
	}()
	o.progress(name, out)
}

func (o *Orchestrator) runOne(ctx context.Context, p probe.Probe, target string, cacheEnabled bool) Outcome {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return Outcome{Result: probe.Failed(probe.Wrap(target, err))}
		}
	}

	timeout := o.cfg.Timeout
	if t, ok := o.cfg.ProbeTimeouts[p.Name()]; ok && t > 0 {
		timeout = t
	}

	runner := NewRunner(p, o.store, RunnerConfig{
		TTL:      o.cfg.TTL,
		Timeout:  timeout,
		Logger:   o.logger,
		Recorder: o.recorder,
	})
	return runner.Run(ctx, target, cacheEnabled)
}
