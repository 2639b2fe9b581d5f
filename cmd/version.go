package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/anomradar/internal/application"
	"github.com/khanhnv2901/anomradar/internal/checker"
)

// Set at build time via -ldflags "-X github.com/khanhnv2901/anomradar/cmd.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version       string   `json:"version"`
	GitCommit     string   `json:"git_commit"`
	BuildDate     string   `json:"build_date"`
	GoVersion     string   `json:"go_version"`
	Platform      string   `json:"platform"`
	Probes        []string `json:"probes"`
	CacheBackends []string `json:"cache_backends"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		Probes:        checker.Names(),
		CacheBackends: []string{application.BackendFile, application.BackendBolt},
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		asJSON, _ := cmd.Flags().GetBool("json")
		return printVersion(cmd.OutOrStdout(), currentVersion(), verbose, asJSON)
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "show build and probe details")
	versionCmd.Flags().Bool("json", false, "print version information as JSON")
}

func printVersion(w io.Writer, info versionInfo, verbose, asJSON bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case verbose:
		_, err := fmt.Fprintf(w, "AnomRadar %s\n  commit:   %s\n  built:    %s\n  go:       %s\n  platform: %s\n  probes:   %s\n  caches:   %s\n",
			info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform,
			strings.Join(info.Probes, ", "), strings.Join(info.CacheBackends, ", "))
		return err
	default:
		_, err := fmt.Fprintf(w, "AnomRadar version %s\n", info.Version)
		return err
	}
}
