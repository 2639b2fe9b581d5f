package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// Outcome is what one runner invocation produced.
type Outcome struct {
	Result  probe.Result
	Cached  bool          // served from the cache
	Stored  bool          // written to the cache
	Elapsed time.Duration // wall time of the invocation
}

// Runner executes one probe with cache-first semantics:
//
//	cache check -> hit: return stored result
//	            -> miss: execute -> success: store, then return
//	                             -> partial/failed: return without storing
type Runner struct {
	probe    probe.Probe
	store    cache.Store
	ttl      time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

// RunnerConfig carries the per-invocation policy.
type RunnerConfig struct {
	TTL      time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
	Recorder Recorder
}

// NewRunner builds a runner for p. A nil store disables caching.
func NewRunner(p probe.Probe, store cache.Store, cfg RunnerConfig) *Runner {
	r := &Runner{
		probe:    p,
		store:    store,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
	if r.store == nil {
		r.store = cache.Nop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	return r
}

// Run never panics and always returns a result satisfying probe.Result.Validate.
func (r *Runner) Run(ctx context.Context, target string, useCache bool) Outcome {
	start := time.Now()
	name := r.probe.Name()
	key := cache.Key(name, target)
	log := r.logger.With(zap.String("probe", name), zap.String("target", target))

	if useCache {
		if res, ok := r.lookup(ctx, key, log); ok {
			r.recorder.CacheLookup(name, true)
			log.Debug("cache hit")
			return Outcome{Result: res, Cached: true, Elapsed: time.Since(start)}
		}
		r.recorder.CacheLookup(name, false)
	}

	res := r.execute(ctx, target)
	elapsed := time.Since(start)
	var category probe.Category
	if res.Error != nil {
		category = res.Error.Category
	}
	r.recorder.ProbeFinished(name, res.Status, category, elapsed)

	out := Outcome{Result: res, Elapsed: elapsed}
	if useCache && res.Status == probe.StatusSuccess {
		out.Stored = r.save(ctx, key, res, log)
	}

	log.Debug("probe finished",
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("stored", out.Stored))
	return out
}

// lookup treats undecodable or non-success entries as a miss and drops them.
func (r *Runner) lookup(ctx context.Context, key string, log *zap.Logger) (probe.Result, bool) {
	data, ok := r.store.Get(ctx, key)
	if !ok {
		return probe.Result{}, false
	}
	res, err := probe.Decode(data)
	if err == nil && res.Status != probe.StatusSuccess {
		err = fmt.Errorf("cached result has status %s", res.Status)
	}
	if err != nil {
		log.Warn("discarding unusable cache entry", zap.Error(err))
		r.store.Delete(ctx, key)
		return probe.Result{}, false
	}
	return res, true
}

func (r *Runner) save(ctx context.Context, key string, res probe.Result, log *zap.Logger) bool {
	data, err := res.Encode()
	if err != nil {
		log.Warn("result not cacheable", zap.Error(err))
		r.recorder.CacheWrite(r.probe.Name(), false)
		return false
	}
	ok := r.store.Set(ctx, key, data, r.ttl)
	r.recorder.CacheWrite(r.probe.Name(), ok)
	return ok
}

// execute runs the probe under the per-probe deadline. A probe that ignores
// its context is abandoned when the deadline passes.
func (r *Runner) execute(ctx context.Context, target string) probe.Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan probe.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("probe panicked",
					zap.String("probe", r.probe.Name()),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				done <- probe.Failed(&probe.Error{
					Category: probe.CategoryUnknown,
					Message:  fmt.Sprintf("probe %s panicked: %v", r.probe.Name(), rec),
				})
			}
		}()
		done <- r.probe.Execute(ctx, target)
	}()

	select {
	case res := <-done:
		return r.normalize(res)
	case <-ctx.Done():
		select {
		case res := <-done:
			return r.normalize(res)
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return probe.FailedWith(probe.CategoryTimeout, fmt.Sprintf("probe %s timed out", r.probe.Name()))
		}
		return probe.Failed(&probe.Error{
			Category: probe.Classify(ctx.Err()),
			Message:  fmt.Sprintf("probe %s canceled", r.probe.Name()),
			Cause:    ctx.Err(),
		})
	}
}

// normalize repairs results that break the contract instead of passing them on.
func (r *Runner) normalize(res probe.Result) probe.Result {
	if err := res.Validate(); err != nil {
		return probe.Failed(&probe.Error{
			Category: probe.CategoryUnknown,
			Message:  fmt.Sprintf("probe %s returned an invalid result", r.probe.Name()),
			Cause:    err,
		})
	}
	if res.Findings == nil {
		res.Findings = []probe.Finding{}
	}
	return res
}
