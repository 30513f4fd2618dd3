package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/monitoring"
	"github.com/sells-group/market-intel/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, and summarizing pipeline runs.",
}

// openStore opens and migrates the configured store.
func openStore(cmd *cobra.Command) (store.Store, error) {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(cmd.Context(), model.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if render, _ := cmd.Flags().GetBool("render"); render {
			if run.Report == nil {
				return eris.Errorf("run %s has no report", run.ID)
			}
			return writeReport(os.Stdout, run.Report, true)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st).Collect(cmd.Context(), int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed, aborted)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsShowCmd.Flags().Bool("render", false, "render the report markdown instead of printing the run as JSON")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats, rounded down to whole hours (0 = all time)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Target", "Status", "Confidence", "Created", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 4, Align: text.AlignRight},
	})

	for _, r := range runs {
		conf := "-"
		if r.Report != nil {
			conf = fmt.Sprintf("%.2f", r.Report.OverallConfidence)
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			truncate(r.Input.Target(), 40),
			r.Status,
			conf,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		})
	}
	t.Render()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Total runs", s.Total},
		{"Complete", s.Complete},
		{"Failed", s.Failed},
		{"Aborted", s.Aborted},
		{"Running", s.Running},
	})
	if s.Finished() > 0 {
		t.AppendRow(table.Row{"Failure rate", fmt.Sprintf("%.1f%%", s.FailRate*100)})
	}
	if s.AvgConfidence > 0 {
		t.AppendRow(table.Row{"Avg confidence", fmt.Sprintf("%.2f", s.AvgConfidence)})
	}
	if s.AvgDurSecs > 0 {
		t.AppendRow(table.Row{"Avg duration", fmt.Sprintf("%.1fs", s.AvgDurSecs)})
	}
	if s.AvgTokens > 0 {
		t.AppendRow(table.Row{"Avg tokens", s.AvgTokens})
	}
	if s.CostUSD > 0 {
		t.AppendRow(table.Row{"Total cost", fmt.Sprintf("$%.4f", s.CostUSD)})
	}
	for _, p := range model.Phases {
		if n := s.PhaseMissing[p]; n > 0 {
			t.AppendRow(table.Row{"Missing " + string(p), n})
		}
	}
	t.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
