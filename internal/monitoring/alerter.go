package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate   AlertType = "failure_rate"
	AlertLowConfidence AlertType = "low_confidence"
	AlertPhaseGap      AlertType = "phase_gap"
	AlertCostOverrun   AlertType = "cost_overrun"
)

const (
	// minSample is the fewest finished runs a rate alert is judged on.
	minSample = 5
	// phaseGapShare is the share of reports missing one phase that raises
	// a phase_gap alert.
	phaseGapShare = 0.5
)

// Alert is one breached threshold.
type Alert struct {
	Type     AlertType       `json:"type"`
	Severity string          `json:"severity"`
	Phase    model.PhaseName `json:"phase,omitempty"`
	Message  string          `json:"message"`
	Value    float64         `json:"value"`
	Limit    float64         `json:"limit"`
}

// key identifies an alert for repeat suppression.
func (a Alert) key() string {
	if a.Phase != "" {
		return string(a.Type) + ":" + string(a.Phase)
	}
	return string(a.Type)
}

// Notification is the webhook body: every alert from one check plus the
// snapshot they were judged on.
type Notification struct {
	Source   string           `json:"source"`
	SentAt   time.Time        `json:"sent_at"`
	Alerts   []Alert          `json:"alerts"`
	Snapshot *MetricsSnapshot `json:"snapshot"`
}

// rule inspects a snapshot and returns the alerts it raises.
type rule func(s *MetricsSnapshot, cfg config.MonitoringConfig) []Alert

var rules = []rule{failureRate, lowConfidence, phaseGaps, costOverrun}

func failureRate(s *MetricsSnapshot, cfg config.MonitoringConfig) []Alert {
	if s.Finished() < minSample || s.FailRate <= cfg.FailureRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%d failed and %d aborted of %d finished runs in %dh (%.1f%%)",
			s.Failed, s.Aborted, s.Finished(), s.LookbackHours, s.FailRate*100),
		Value: s.FailRate,
		Limit: cfg.FailureRateThreshold,
	}}
}

func lowConfidence(s *MetricsSnapshot, cfg config.MonitoringConfig) []Alert {
	if cfg.MinConfidence <= 0 || s.Reports < minSample || s.AvgConfidence >= cfg.MinConfidence {
		return nil
	}
	return []Alert{{
		Type:     AlertLowConfidence,
		Severity: "medium",
		Message: fmt.Sprintf("average report confidence %.2f over %d reports in %dh",
			s.AvgConfidence, s.Reports, s.LookbackHours),
		Value: s.AvgConfidence,
		Limit: cfg.MinConfidence,
	}}
}

// phaseGaps raises one alert per phase missing from most reports, which
// usually means a provider key or search quota is gone.
func phaseGaps(s *MetricsSnapshot, _ config.MonitoringConfig) []Alert {
	if s.Reports < minSample {
		return nil
	}
	var out []Alert
	for _, p := range model.Phases {
		share := float64(s.PhaseMissing[p]) / float64(s.Reports)
		if share <= phaseGapShare {
			continue
		}
		out = append(out, Alert{
			Type:     AlertPhaseGap,
			Severity: "low",
			Phase:    p,
			Message: fmt.Sprintf("%s missing from %d of %d reports in %dh",
				p, s.PhaseMissing[p], s.Reports, s.LookbackHours),
			Value: share,
			Limit: phaseGapShare,
		})
	}
	return out
}

func costOverrun(s *MetricsSnapshot, cfg config.MonitoringConfig) []Alert {
	if cfg.CostThresholdUSD <= 0 || s.CostUSD <= cfg.CostThresholdUSD {
		return nil
	}
	return []Alert{{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message:  fmt.Sprintf("model and search spend $%.2f over %d runs in %dh", s.CostUSD, s.Total, s.LookbackHours),
		Value:    s.CostUSD,
		Limit:    cfg.CostThresholdUSD,
	}}
}

// Alerter judges snapshots against the configured thresholds and delivers
// notifications to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate returns every alert the snapshot raises, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	for _, r := range rules {
		alerts = append(alerts, r(snap, a.cfg)...)
	}
	return alerts
}

// Notify posts all alerts in one webhook call. Without a webhook URL or
// alerts it does nothing.
func (a *Alerter) Notify(ctx context.Context, snap *MetricsSnapshot, alerts []Alert) error {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(Notification{
		Source:   "market-intel",
		SentAt:   a.now().UTC(),
		Alerts:   alerts,
		Snapshot: snap,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
