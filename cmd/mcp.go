package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analyze_business and get_report tools over MCP stdio",
	Long: `Runs an MCP server on stdin/stdout. Logs go to stderr so the
protocol stream stays clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "mcp")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting mcp server", zap.String("version", version))
		return mcpserver.New(env.Pipeline, env.Store, version).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
