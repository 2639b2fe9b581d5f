// Package boltdb provides a single-file cache.Store backed by bbolt. It keeps
// the same record layout as the JSON file store, one record per key in the
// entries bucket.
package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
)

// FileName is the database file created inside the cache directory.
const FileName = "cache.db"

var bucketEntries = []byte("entries")

// CacheStore implements cache.Store on top of a bbolt database.
type CacheStore struct {
	db      *bolt.DB
	logger  *zap.Logger
	now     cache.Clock
	onError func(*cache.IOError)
}

var (
	_ cache.Store         = (*CacheStore)(nil)
	_ cache.StatsProvider = (*CacheStore)(nil)
)

// Option configures a CacheStore.
type Option func(*CacheStore)

func WithLogger(logger *zap.Logger) Option {
	return func(s *CacheStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock cache.Clock) Option {
	return func(s *CacheStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithErrorHook(hook func(*cache.IOError)) Option {
	return func(s *CacheStore) {
		s.onError = hook
	}
}

// Open creates or opens <dir>/cache.db. Errors here are configuration-time
// failures; after Open the store absorbs every storage error.
func Open(dir string, opts ...Option) (*CacheStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, FileName), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache bucket: %w", err)
	}

	s := &CacheStore{
		db:     db,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file lock.
func (s *CacheStore) Close() error {
	return s.db.Close()
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if !cache.ValidKey(key) {
		return nil, false
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		s.absorb(&cache.IOError{Op: "read", Key: key, Err: err})
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	rec, err := cache.DecodeRecord(data)
	if err != nil || rec.Expired(s.now()) {
		s.deleteIfUnchanged(key, data)
		return nil, false
	}
	return []byte(rec.Value), true
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !cache.ValidKey(key) {
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

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), data)
	}); err != nil {
		s.absorb(&cache.IOError{Op: "write", Key: key, Err: err})
		return false
	}
	return true
}

func (s *CacheStore) Delete(ctx context.Context, key string) bool {
	if !cache.ValidKey(key) {
		return false
	}

	removed := false
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		removed = true
		return b.Delete([]byte(key))
	}); err != nil {
		s.absorb(&cache.IOError{Op: "delete", Key: key, Err: err})
		return false
	}
	return removed
}

func (s *CacheStore) Clear(ctx context.Context) int {
	return s.deleteWhere("clear", func([]byte) bool { return true })
}

func (s *CacheStore) PurgeExpired(ctx context.Context) int {
	now := s.now()
	return s.deleteWhere("purge", func(data []byte) bool {
		rec, err := cache.DecodeRecord(data)
		return err != nil || rec.Expired(now)
	})
}

func (s *CacheStore) Stats(ctx context.Context) (cache.Stats, error) {
	now := s.now()
	var stats cache.Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			stats.Entries++
			stats.Bytes += int64(len(v))
			if rec, err := cache.DecodeRecord(v); err != nil || rec.Expired(now) {
				stats.Expired++
			}
			return nil
		})
	})
	if err != nil {
		return cache.Stats{}, fmt.Errorf("failed to read cache database: %w", err)
	}
	return stats, nil
}

// deleteWhere removes every entry matching fn in one transaction.
func (s *CacheStore) deleteWhere(op string, match func(data []byte) bool) int {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		var doomed [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if match(v) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	if err != nil {
		s.absorb(&cache.IOError{Op: op, Err: err})
		return 0
	}
	return removed
}

func (s *CacheStore) deleteIfUnchanged(key string, seen []byte) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if !bytes.Equal(b.Get([]byte(key)), seen) {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		s.absorb(&cache.IOError{Op: "delete", Key: key, Err: err})
	}
}

func (s *CacheStore) absorb(err *cache.IOError) {
	s.logger.Warn("cache storage error", zap.String("op", err.Op), zap.String("key", err.Key), zap.Error(err.Err))
	if s.onError != nil {
		s.onError(err)
	}
}
