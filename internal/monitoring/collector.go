// Package monitoring summarizes recent pipeline runs and raises webhook
// alerts when failure rate, confidence or spend cross their thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
)

// scanLimit caps how many recent runs one collection reads.
const scanLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Aborted  int `json:"aborted"`
	Running  int `json:"running"`
	// Reports counts runs that stored a report.
	Reports int `json:"reports"`

	// FailRate is (failed + aborted) / finished.
	FailRate      float64 `json:"fail_rate"`
	CostUSD       float64 `json:"cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgTokens     int64   `json:"avg_tokens"`
	AvgDurSecs    float64 `json:"avg_duration_secs"`

	// PhaseMissing counts reports that lacked each phase.
	PhaseMissing map[model.PhaseName]int `json:"phase_missing"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished is the number of runs that reached a terminal state.
func (s *MetricsSnapshot) Finished() int {
	return s.Complete + s.Failed + s.Aborted
}

// RunLister is the store subset the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. A zero window
// covers every stored run up to the scan limit.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	runs, err := c.runs.ListRuns(ctx, model.RunFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	return Summarize(runs, lookbackHours, c.now().UTC()), nil
}

// Summarize aggregates the runs created within lookbackHours of now.
func Summarize(runs []model.Run, lookbackHours int, now time.Time) *MetricsSnapshot {
	snap := &MetricsSnapshot{
		PhaseMissing:  make(map[model.PhaseName]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var (
		confSum  float64
		tokens   int64
		totalDur time.Duration
	)
	for _, r := range runs {
		if lookbackHours > 0 && r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusAborted:
			snap.Aborted++
		default:
			snap.Running++
		}
		if r.Report == nil {
			continue
		}
		snap.Reports++
		confSum += r.Report.OverallConfidence
		tokens += r.Report.Usage.Total()
		snap.CostUSD += r.Report.Usage.Cost
		for _, p := range r.Report.DataQuality.PhasesMissing {
			snap.PhaseMissing[p]++
		}
	}

	if f := snap.Finished(); f > 0 {
		snap.FailRate = float64(snap.Failed+snap.Aborted) / float64(f)
	}
	if snap.Reports > 0 {
		snap.AvgConfidence = confSum / float64(snap.Reports)
		snap.AvgTokens = tokens / int64(snap.Reports)
	}
	if snap.Complete > 0 {
		snap.AvgDurSecs = totalDur.Seconds() / float64(snap.Complete)
	}
	return snap
}
