package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zaptest"
)

// setupTestAppContext builds an AppContext rooted in a temp dir with the
// file cache enabled and installs it as the global context.
func setupTestAppContext(t *testing.T) *AppContext {
	t.Helper()

	dataDir := t.TempDir()
	t.Setenv(dataDirEnvVar, dataDir)
	t.Cleanup(viper.Reset)

	cfg, err := loadConfig(viper.New(), "", dataDir)
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Logging.File = ""

	appCtx := &AppContext{
		Logger:  zaptest.NewLogger(t),
		Config:  cfg,
		DataDir: dataDir,
	}

	original := globalAppContext
	globalAppContext = appCtx
	t.Cleanup(func() {
		_ = appCtx.Close()
		globalAppContext = original
	})
	return appCtx
}

// executeCommand runs the root command with args against a fresh data dir
// and returns combined output.
func executeCommand(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	t.Setenv(dataDirEnvVar, dataDir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	resetCommandFlags(rootCmd)
	t.Cleanup(func() { resetCommandFlags(rootCmd) })

	original := globalAppContext
	t.Cleanup(func() { globalAppContext = original })

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--config", writeTestConfig(t, dataDir)}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

// writeTestConfig keeps command tests off the network defaults and out of
// the real log file.
func writeTestConfig(t *testing.T, dataDir string) string {
	t.Helper()
	path := filepath.Join(dataDir, "test-config.yaml")
	content := "logging:\n  file: \"\"\n  level: ERROR\n" +
		"dns:\n  nameservers: [\"127.0.0.1:1\"]\n  timeout: 1\n" +
		"scanner:\n  timeout: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func resetCommandFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetCommandFlags(child)
	}
}
