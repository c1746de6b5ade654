package main

import (
	"context"
	"math/rand"
	"time"
)

const (
	backoffCeiling = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

// pacer spaces out polls. Idle polls wait the base interval; consecutive
// failures double the wait up to backoffCeiling.
type pacer struct {
	base    time.Duration
	current time.Duration
	jitter  func() time.Duration
}

func newPacer(base time.Duration) *pacer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &pacer{
		base:    base,
		current: base,
		jitter:  func() time.Duration { return time.Duration(rng.Int63n(int64(jitterWindow))) },
	}
}

func (p *pacer) reset() { p.current = p.base }

func (p *pacer) next(failed bool) time.Duration {
	if !failed {
		p.current = p.base
		return p.base
	}
	p.current *= 2
	if p.current > backoffCeiling {
		p.current = backoffCeiling
	}
	return p.current
}

func (p *pacer) wait(ctx context.Context, failed bool) error {
	d := p.next(failed)
	if p.jitter != nil {
		d += p.jitter()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
