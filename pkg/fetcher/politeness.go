package fetcher

import (
	"context"
	"math/rand/v2"
	"time"
)

// Politeness produces the randomized delay that precedes each top-level
// fetch. Delays are per call; concurrent retrievals wait independently.
type Politeness struct {
	min, max time.Duration
	disabled bool
}

// NewPoliteness picks the baseline or stealth range from cfg.
func NewPoliteness(cfg PolitenessConfig) *Politeness {
	p := &Politeness{min: cfg.Min, max: cfg.Max, disabled: cfg.Disabled}
	if cfg.Stealth {
		p.min, p.max = cfg.StealthMin, cfg.StealthMax
	}
	if p.min < 0 {
		p.min = 0
	}
	if p.max < p.min {
		p.max = p.min
	}
	return p
}

// Delay returns how long to wait. A positive override is used as given.
func (p *Politeness) Delay(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if p.disabled {
		return 0
	}
	if p.max == p.min {
		return p.min
	}
	return p.min + rand.N(p.max-p.min)
}

// Wait sleeps for Delay(override) or until ctx is done.
func (p *Politeness) Wait(ctx context.Context, override time.Duration) error {
	return sleepCtx(ctx, p.Delay(override))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
