package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"analyze", "batch", "runs", "rescore", "serve", "mcp"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "market-intel", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, version, rootCmd.Version)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"url", "description", "content-file", "presence-file", "search-file", "keyword", "render", "out"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s flag", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag, "batch command should have --concurrency flag")
	assert.Equal(t, "0", flag.DefValue)

	for _, name := range []string{"input", "limit", "xlsx", "notion"} {
		assert.NotNil(t, batchCmd.Flags().Lookup(name), "batch should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRescoreCommand_Args(t *testing.T) {
	assert.Error(t, rescoreCmd.Args(rescoreCmd, nil))
	assert.NoError(t, rescoreCmd.Args(rescoreCmd, []string{"run-1"}))
	assert.NotNil(t, rescoreCmd.Flags().Lookup("save"))
}

func TestApplyLogFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "x"}
		c.Flags().StringVar(&logFlags.level, "log-level", "", "")
		c.Flags().StringVar(&logFlags.format, "log-format", "", "")
		return c
	}

	lc := config.LogConfig{Level: "info", Format: "json"}
	applyLogFlags(newCmd(), &lc)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, lc)

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))
	applyLogFlags(cmd, &lc)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-format"))
}
