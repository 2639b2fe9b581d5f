package json

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
	"github.com/khanhnv2901/anomradar/internal/shared/security"
)

const (
	entryExt = ".json"
	tempExt  = ".tmp"

	// staleTempAge is how long a temp file may sit before PurgeExpired
	// treats it as left over from an interrupted write.
	staleTempAge = 10 * time.Minute
)

// CacheStore implements cache.Store with one JSON file per entry.
//
// Writes go through a temp file and rename so readers never observe a torn
// record. Concurrent writers to the same key are last-write-wins.
type CacheStore struct {
	dir     string
	logger  *zap.Logger
	now     cache.Clock
	onError func(*cache.IOError)
	mu      sync.RWMutex
}

var (
	_ cache.Store         = (*CacheStore)(nil)
	_ cache.StatsProvider = (*CacheStore)(nil)
)

// Option configures a CacheStore.
type Option func(*CacheStore)

// WithLogger sets the logger used for absorbed storage errors.
func WithLogger(logger *zap.Logger) Option {
	return func(s *CacheStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(clock cache.Clock) Option {
	return func(s *CacheStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithErrorHook is called for every absorbed storage error.
func WithErrorHook(hook func(*cache.IOError)) Option {
	return func(s *CacheStore) {
		s.onError = hook
	}
}

// NewCacheStore creates the cache directory if needed.
func NewCacheStore(dir string, opts ...Option) (*CacheStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}

	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &CacheStore{
		dir:    dir,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory holding the entries.
func (s *CacheStore) Dir() string {
	return s.dir
}

// Get returns the value for key. Expired or corrupt entries are removed.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	path, ok := s.pathFor(key)
	if !ok {
		return nil, false
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.absorb(&cache.IOError{Op: "read", Key: key, Err: err})
		}
		return nil, false
	}

	rec, err := cache.DecodeRecord(data)
	if err != nil {
		s.logger.Debug("removing corrupt cache entry", zap.String("key", key), zap.Error(err))
		s.removeIfUnchanged(key, path, data)
		return nil, false
	}

	if rec.Expired(s.now()) {
		s.logger.Debug("removing expired cache entry", zap.String("key", key))
		s.removeIfUnchanged(key, path, data)
		return nil, false
	}

	return []byte(rec.Value), true
}

// Set stores value for ttl. It returns false instead of failing.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	path, ok := s.pathFor(key)
	if !ok {
		s.absorb(&cache.IOError{Op: "write", Key: key, Err: fmt.Errorf("invalid cache key")})
		return false
	}
	if ttl <= 0 {
		s.absorb(&cache.IOError{Op: "write", Key: key, Err: fmt.Errorf("ttl must be positive, got %s", ttl)})
		return false
	}

	data, err := cache.NewRecord(value, s.now(), ttl).Encode()
	if err != nil {
		s.absorb(&cache.IOError{Op: "encode", Key: key, Err: err})
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.dir, path, data); err != nil {
		s.absorb(&cache.IOError{Op: "write", Key: key, Err: err})
		return false
	}
	return true
}

// Delete removes key and reports whether it existed.
func (s *CacheStore) Delete(ctx context.Context, key string) bool {
	path, ok := s.pathFor(key)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(key, path)
}

// Clear removes every entry.
func (s *CacheStore) Clear(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.entryPaths()
	if err != nil {
		s.absorb(&cache.IOError{Op: "list", Err: err})
		return 0
	}

	removed := 0
	var errs error
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		removed++
	}
	if errs != nil {
		s.absorb(&cache.IOError{Op: "clear", Err: errs})
	}
	return removed
}

// PurgeExpired removes expired and corrupt entries.
func (s *CacheStore) PurgeExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.entryPaths()
	if err != nil {
		s.absorb(&cache.IOError{Op: "list", Err: err})
		return 0
	}

	now := s.now()
	removed := 0
	var errs error
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		rec, err := cache.DecodeRecord(data)
		if err == nil && !rec.Expired(now) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		removed++
	}
	errs = multierr.Append(errs, s.removeStaleTemps(now))
	if errs != nil {
		s.absorb(&cache.IOError{Op: "purge", Err: errs})
	}
	return removed
}

// removeStaleTemps deletes temp files from interrupted writes. Must be called
// with s.mu held.
func (s *CacheStore) removeStaleTemps(now time.Time) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	var errs error
	for _, entry := range entries {
		if entry.IsDir() || !isTempName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < staleTempAge {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, err)
			continue
		}
		s.logger.Debug("removed stale cache temp file", zap.String("file", entry.Name()))
	}
	return errs
}

// isTempName matches the "<key>.json.<random>.tmp" names writeAtomic creates.
func isTempName(name string) bool {
	if !strings.HasSuffix(name, tempExt) {
		return false
	}
	key, _, ok := strings.Cut(name, entryExt+".")
	return ok && cache.ValidKey(key)
}

// Stats reports entry counts and on-disk size.
func (s *CacheStore) Stats(ctx context.Context) (cache.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, err := s.entryPaths()
	if err != nil {
		return cache.Stats{}, fmt.Errorf("failed to list cache directory: %w", err)
	}

	now := s.now()
	var stats cache.Stats
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += int64(len(data))
		if rec, err := cache.DecodeRecord(data); err != nil || rec.Expired(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

func (s *CacheStore) pathFor(key string) (string, bool) {
	if !cache.ValidKey(key) {
		return "", false
	}
	path, err := security.ResolveWithin(s.dir, key+entryExt)
	if err != nil {
		return "", false
	}
	return path, true
}

// entryPaths lists files whose names look like derived keys. Anything else
// in the directory is left alone.
func (s *CacheStore) entryPaths() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		if !cache.ValidKey(strings.TrimSuffix(name, entryExt)) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	return paths, nil
}

// removeIfUnchanged deletes path only if it still holds seen, so a fresh
// write racing with a lazy purge survives.
func (s *CacheStore) removeIfUnchanged(key, path string, seen []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(current, seen) {
		return
	}
	s.remove(key, path)
}

func (s *CacheStore) remove(key, path string) bool {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.absorb(&cache.IOError{Op: "delete", Key: key, Err: err})
		}
		return false
	}
	return true
}

func (s *CacheStore) absorb(err *cache.IOError) {
	s.logger.Warn("cache storage error", zap.String("op", err.Op), zap.String("key", err.Key), zap.Error(err.Err))
	if s.onError != nil {
		s.onError(err)
	}
}

func writeAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+tempExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := multierr.Combine(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Chmod(tmpName, constants.DefaultFilePerm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set cache entry permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}
