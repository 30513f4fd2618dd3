package llm

import (
	"sort"
	"sync"

	"github.com/sells-group/market-intel/internal/model"
)

// UsageRecord aggregates model usage for one (phase, model) pair.
type UsageRecord struct {
	Phase        model.PhaseName `json:"phase"`
	Model        string          `json:"model"`
	Requests     int             `json:"requests"`
	Failures     int             `json:"failures"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         float64         `json:"cost_usd"`
}

type usageKey struct {
	phase model.PhaseName
	model string
}

// Tracker accumulates usage counters. It is safe for concurrent use so one
// client can serve several runs.
type Tracker struct {
	mu      sync.Mutex
	records map[usageKey]*UsageRecord
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[usageKey]*UsageRecord)}
}

func (t *Tracker) get(phase model.PhaseName, m string) *UsageRecord {
	k := usageKey{phase: phase, model: m}
	r, ok := t.records[k]
	if !ok {
		r = &UsageRecord{Phase: phase, Model: m}
		t.records[k] = r
	}
	return r
}

// Record counts a successful request.
func (t *Tracker) Record(phase model.PhaseName, m string, input, output int64, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.get(phase, m)
	r.Requests++
	r.InputTokens += input
	r.OutputTokens += output
	r.Cost += cost
}

// RecordFailure counts a failed request.
func (t *Tracker) RecordFailure(phase model.PhaseName, m string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.get(phase, m)
	r.Requests++
	r.Failures++
}

// Snapshot returns a copy of all records sorted by phase then model.
func (t *Tracker) Snapshot() []UsageRecord {
	t.mu.Lock()
	out := make([]UsageRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Totals sums every record.
func (t *Tracker) Totals() model.TokenUsage {
	var total model.TokenUsage
	for _, r := range t.Snapshot() {
		total.Add(model.TokenUsage{PromptTokens: r.InputTokens, CompletionTokens: r.OutputTokens, Cost: r.Cost})
	}
	return total
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[usageKey]*UsageRecord)
}
