package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
)

const (
	defaultInterval = 5 * time.Minute
	// repeatAfter holds back an alert that was already delivered until
	// this long has passed.
	repeatAfter = time.Hour
)

// Checker collects a snapshot on an interval and notifies on new alerts.
// It is not safe for concurrent Check calls.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time
	lastSent  map[string]time.Time
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		lastSent:  make(map[string]time.Time),
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	log := zap.L().With(zap.String("component", "monitoring"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check runs one collection and delivers alerts not sent within the
// repeat window. It returns the number of alerts delivered.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		zap.L().Error("monitoring: collect", zap.Error(err))
		return 0
	}

	now := c.now()
	var fresh []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		if last, ok := c.lastSent[a.key()]; ok && now.Sub(last) < repeatAfter {
			continue
		}
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return 0
	}

	if err := c.alerter.Notify(ctx, snap, fresh); err != nil {
		zap.L().Error("monitoring: notify", zap.Int("alerts", len(fresh)), zap.Error(err))
		return 0
	}
	for _, a := range fresh {
		c.lastSent[a.key()] = now
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	return len(fresh)
}
