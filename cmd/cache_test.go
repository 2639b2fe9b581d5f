package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
)

func TestCacheStoreDisabled(t *testing.T) {
	appCtx := setupTestAppContext(t)
	appCtx.Config.Cache.Enabled = false

	_, err := cacheStore(appCtx, "clear")
	var opErr *CacheOperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "clear", opErr.Operation)
	assert.Contains(t, err.Error(), "caching is disabled")
}

func TestCacheStoreEnabled(t *testing.T) {
	appCtx := setupTestAppContext(t)

	store, err := cacheStore(appCtx, "stats")
	require.NoError(t, err)
	_, ok := store.(cache.StatsProvider)
	assert.True(t, ok, "file store should report stats")
}

func TestPrintCacheStats(t *testing.T) {
	var buf bytes.Buffer
	cfg := CacheConfig{Enabled: true, Dir: "/var/cache/anomradar", TTL: 3600, Backend: "file"}

	require.NoError(t, printCacheStats(&buf, cfg, cache.Stats{Entries: 4, Expired: 1, Bytes: 2048}))

	out := buf.String()
	assert.Contains(t, out, "file")
	assert.Contains(t, out, "/var/cache/anomradar")
	assert.Contains(t, out, "3600s")
	assert.Contains(t, out, "2.0 KiB")
}

func TestCacheCommands(t *testing.T) {
	dataDir := t.TempDir()

	out, err := executeCommand(t, dataDir, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries")

	out, err = executeCommand(t, dataDir, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired result(s)")

	out, err = executeCommand(t, dataDir, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 cached result(s)")
}

func TestCacheCommandDisabled(t *testing.T) {
	t.Setenv("ANOMRADAR_CACHE_ENABLED", "false")

	_, err := executeCommand(t, t.TempDir(), "cache", "clear")
	var opErr *CacheOperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, exitFailure, exitCode(err))
}
