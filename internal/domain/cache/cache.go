// Package cache defines the scan result cache contract: key derivation, the
// persisted record layout and the Store interface implemented by the
// persistence backends.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// KeyLength is the length of every derived key (hex sha256).
const KeyLength = sha256.Size * 2

// Store is a key/value store with per-entry TTL.
//
// Implementations never return storage errors. Failed reads degrade to a
// miss, failed writes return false.
type Store interface {
	// Get returns the stored value, or false for missing, expired or corrupt
	// entries. Expired and corrupt entries are removed as a side effect.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value (a JSON document) for ttl and reports success.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// Delete reports whether an entry was removed.
	Delete(ctx context.Context, key string) bool
	// Clear removes every entry and returns the count.
	Clear(ctx context.Context) int
	// PurgeExpired removes expired and corrupt entries and returns the count.
	PurgeExpired(ctx context.Context) int
}

// Stats summarizes the contents of a store.
type Stats struct {
	Entries int   `json:"entries"`
	Expired int   `json:"expired"`
	Bytes   int64 `json:"bytes"`
}

// StatsProvider is implemented by stores that can report Stats.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Key derives the storage key for a probe run against target.
func Key(probeName, target string) string {
	sum := sha256.Sum256([]byte(probeName + "\x00" + probe.NormalizeTarget(target)))
	return hex.EncodeToString(sum[:])
}

// ValidKey reports whether key has the shape produced by Key.
func ValidKey(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Clock returns the current time. Stores accept one so tests can move time.
type Clock func() time.Time
