package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sells-group/market-intel/internal/config"
)

// Pacer inserts a randomized delay between phases so a run reads as
// human-paced traffic rather than a bulk crawl.
type Pacer struct {
	cfg   config.PacingConfig
	rand  func(n int64) int64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer from cfg.
func NewPacer(cfg config.PacingConfig) *Pacer {
	return &Pacer{cfg: cfg, rand: rand.Int64N, sleep: sleepCtx}
}

// Delay returns the next delay, uniform in [min, max]. It is zero when
// pacing is disabled.
func (p *Pacer) Delay() time.Duration {
	if p == nil || !p.cfg.Enabled {
		return 0
	}
	lo, hi := p.cfg.MinDelayMs, p.cfg.MaxDelayMs
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	ms := int64(lo)
	if span := int64(hi - lo); span > 0 {
		ms += p.rand(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// Wait sleeps for the next delay. It returns early with the context error
// when ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
