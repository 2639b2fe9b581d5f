package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the probe result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached probe result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		store, err := cacheStore(appCtx, "clear")
		if err != nil {
			return err
		}
		removed := store.Clear(cmd.Context())
		appCtx.Logger.Info("cache cleared", zap.Int("removed", removed))
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d cached result(s)\n", colorSuccess("✓"), removed)
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired cached results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		store, err := cacheStore(appCtx, "purge")
		if err != nil {
			return err
		}
		removed := store.PurgeExpired(cmd.Context())
		appCtx.Logger.Info("cache purged", zap.Int("removed", removed))
		fmt.Fprintf(cmd.OutOrStdout(), "%s Purged %d expired result(s)\n", colorSuccess("✓"), removed)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and expired entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		store, err := cacheStore(appCtx, "stats")
		if err != nil {
			return err
		}
		provider, ok := store.(cache.StatsProvider)
		if !ok {
			return &CacheOperationError{Operation: "stats", Backend: appCtx.Config.Cache.Backend}
		}
		stats, err := provider.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}
		return printCacheStats(cmd.OutOrStdout(), appCtx.Config.Cache, stats)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePurgeCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheStore returns the configured store, refusing when caching is disabled.
func cacheStore(appCtx *AppContext, operation string) (cache.Store, error) {
	if !appCtx.Config.Cache.Enabled {
		return nil, &CacheOperationError{Operation: operation}
	}
	services, err := appCtx.Services()
	if err != nil {
		return nil, err
	}
	return services.Store, nil
}

func printCacheStats(w io.Writer, cfg CacheConfig, stats cache.Stats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Setting", "Value")
	rows := [][]string{
		{"Backend", cfg.Backend},
		{"Directory", cfg.Dir},
		{"TTL", fmt.Sprintf("%ds", cfg.TTL)},
		{"Entries", strconv.Itoa(stats.Entries)},
		{"Expired", strconv.Itoa(stats.Expired)},
		{"Size", formatBytes(stats.Bytes)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render cache stats: %w", err)
		}
	}
	return table.Render()
}
