package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-intel/internal/export"
	"github.com/sells-group/market-intel/internal/model"
)

var batchFlags struct {
	input       string
	concurrency int
	limit       int
	xlsxOut     string
	notion      bool
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze many businesses from a JSON, CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchFlags.concurrency > 0 {
			cfg.Batch.Concurrency = batchFlags.concurrency
		}

		inputs, err := loadInputs(batchFlags.input)
		if err != nil {
			return err
		}
		if batchFlags.limit > 0 && len(inputs) > batchFlags.limit {
			inputs = inputs[:batchFlags.limit]
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		var publish publishFunc
		if batchFlags.notion {
			if env.Notion == nil {
				return eris.New("--notion requires MARKET_INTEL_NOTION_TOKEN")
			}
			publish = export.NewNotionPublisher(env.Notion, cfg.Notion.ReportDB).Publish
		}

		rows, err := processBatch(ctx, inputs, cfg.Batch.Concurrency, env.Pipeline.Execute, publish)
		if err != nil {
			return err
		}

		if batchFlags.xlsxOut != "" {
			if err := export.WriteWorkbook(batchFlags.xlsxOut, rows); err != nil {
				return err
			}
			zap.L().Info("batch summary written", zap.String("path", batchFlags.xlsxOut))
		}

		for _, u := range env.LLM.Usage().Snapshot() {
			zap.L().Info("model usage",
				zap.String("phase", string(u.Phase)),
				zap.String("model", u.Model),
				zap.Int("requests", u.Requests),
				zap.Int("failures", u.Failures),
				zap.Int64("input_tokens", u.InputTokens),
				zap.Int64("output_tokens", u.OutputTokens),
				zap.Float64("cost_usd", u.Cost),
			)
		}
		return nil
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchFlags.input, "input", "", "input file (.json array of inputs, or .csv/.xlsx with url, description, keywords columns)")
	f.IntVar(&batchFlags.concurrency, "concurrency", 0, "concurrent runs (default from config)")
	f.IntVar(&batchFlags.limit, "limit", 0, "max number of inputs to process (0 = all)")
	f.StringVar(&batchFlags.xlsxOut, "xlsx", "", "write a summary workbook to this path")
	f.BoolVar(&batchFlags.notion, "notion", false, "publish each report to the Notion report database")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// analyzeFunc runs one input. It returns nil for an aborted run.
type analyzeFunc func(ctx context.Context, in model.Input) *model.Report

// publishFunc publishes a report and returns its external id.
type publishFunc func(ctx context.Context, rep *model.Report) (string, error)

// processBatch runs inputs with bounded concurrency and returns one row per
// input in input order. A failed run or publish never aborts the batch.
func processBatch(ctx context.Context, inputs []model.Input, concurrency int, analyze analyzeFunc, publish publishFunc) ([]export.Row, error) {
	rows := make([]export.Row, len(inputs))
	if len(inputs) == 0 {
		zap.L().Info("no inputs to process")
		return rows, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("inputs", len(inputs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, aborted, published atomic.Int64

	for i, in := range inputs {
		g.Go(func() error {
			log := zap.L().With(zap.String("target", in.Target()))
			rows[i] = export.Row{Input: in}

			rep := analyze(gctx, in)
			if rep == nil {
				aborted.Add(1)
				rows[i].Err = "run aborted"
				log.Warn("analysis aborted")
				return nil
			}
			rows[i].Report = rep
			succeeded.Add(1)
			log.Info("analysis complete",
				zap.String("status", string(rep.Status)),
				zap.Float64("overall_confidence", rep.OverallConfidence),
			)

			if publish != nil {
				id, err := publish(gctx, rep)
				if err != nil {
					rows[i].Err = err.Error()
					log.Warn("publish failed", zap.Error(err))
					return nil
				}
				published.Add(1)
				log.Debug("report published", zap.String("page_id", id))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rows, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("aborted", aborted.Load()),
		zap.Int64("published", published.Load()),
	)
	return rows, nil
}
