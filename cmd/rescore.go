package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/pipeline"
)

var rescoreFlags struct {
	save   bool
	render bool
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore <run-id>",
	Short: "Rebuild a run's report from its stored phase artifacts",
	Long: `Consolidates the stored phase artifacts of a run again using the
current scoring weights and consolidation model. No phase agent runs.

Examples:
  # Preview the report with updated weights
  rescore 5f0c2e9a-... --render

  # Replace the stored report
  rescore 5f0c2e9a-... --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.Rescore(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("rescore complete",
			zap.String("run_id", rep.RunID),
			zap.String("status", string(rep.Status)),
			zap.Float64("overall_confidence", rep.OverallConfidence),
		)

		if rescoreFlags.save {
			if err := env.Store.SaveReport(ctx, rep.RunID, rep); err != nil {
				return eris.Wrap(err, "rescore: save report")
			}
			if err := env.Store.Write(ctx, pipeline.ReportKey(rep.Target), rep); err != nil {
				return eris.Wrap(err, "rescore: write latest report")
			}
		}
		return writeReport(os.Stdout, rep, rescoreFlags.render)
	},
}

func init() {
	rescoreCmd.Flags().BoolVar(&rescoreFlags.save, "save", false, "replace the stored report")
	rescoreCmd.Flags().BoolVar(&rescoreFlags.render, "render", false, "render the report markdown in the terminal")
	rootCmd.AddCommand(rescoreCmd)
}
