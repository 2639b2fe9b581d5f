package application

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/application/scan"
	"github.com/khanhnv2901/anomradar/internal/checker"
	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/infrastructure/metrics"
	"github.com/khanhnv2901/anomradar/internal/infrastructure/persistence/boltdb"
	"github.com/khanhnv2901/anomradar/internal/infrastructure/persistence/json"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// Cache backends selectable through cache.backend.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Options describes how to assemble the scan services.
type Options struct {
	CacheEnabled bool
	CacheBackend string
	CacheDir     string
	Probes       checker.Config
	Scan         scan.Config
	Logger       *zap.Logger
	// Metrics is optional; nil records nothing.
	Metrics *metrics.PrometheusMetrics
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	Store        cache.Store
	Registry     *scan.Registry
	Orchestrator *scan.Orchestrator
	Metrics      *metrics.PrometheusMetrics

	closers []io.Closer
}

// NewContainer creates a new application service container
func NewContainer(opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, closer, err := openStore(opts, logger)
	if err != nil {
		return nil, err
	}
	c := &Container{Store: store, Metrics: opts.Metrics}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	registry, err := scan.NewRegistry(checker.Builtin(opts.Probes, logger)...)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to register probes: %w", err)
	}
	c.Registry = registry

	orchestratorOpts := []scan.Option{scan.WithLogger(logger)}
	if opts.Metrics != nil {
		orchestratorOpts = append(orchestratorOpts, scan.WithRecorder(opts.Metrics))
	}
	c.Orchestrator = scan.NewOrchestrator(registry, store, opts.Scan, orchestratorOpts...)
	return c, nil
}

func openStore(opts Options, logger *zap.Logger) (cache.Store, io.Closer, error) {
	if !opts.CacheEnabled {
		return cache.Nop{}, nil, nil
	}
	storeLogger := logger.Named("cache")
	switch strings.ToLower(strings.TrimSpace(opts.CacheBackend)) {
	case "", BackendFile:
		store, err := json.NewCacheStore(opts.CacheDir, json.WithLogger(storeLogger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file cache: %w", err)
		}
		return store, nil, nil
	case BackendBolt:
		store, err := boltdb.Open(opts.CacheDir, boltdb.WithLogger(storeLogger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bolt cache: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownBackend, opts.CacheBackend)
	}
}

// Check reports whether the cache backend is reachable. It backs the API
// health endpoint.
func (c *Container) Check(ctx context.Context) error {
	sp, ok := c.Store.(cache.StatsProvider)
	if !ok {
		return nil
	}
	if _, err := sp.Stats(ctx); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrCacheUnavailable, err)
	}
	return nil
}

// Close releases the cache backend.
func (c *Container) Close() error {
	var err error
	for _, closer := range c.closers {
		err = multierr.Append(err, closer.Close())
	}
	c.closers = nil
	return err
}
