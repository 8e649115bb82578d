package ingest

import (
	"context"
	"time"
)

// pacer holds a producer back to wall-clock speed.
type pacer struct {
	rate    int
	enabled bool
	start   time.Time
}

func newPacer(sampleRate int, enabled bool) *pacer {
	return &pacer{rate: sampleRate, enabled: enabled, start: time.Now()}
}

// wait blocks until the sample position ts is due. It returns ctx's error if
// ctx ends first.
func (p *pacer) wait(ctx context.Context, ts int64) error {
	if !p.enabled || p.rate <= 0 {
		return ctx.Err()
	}
	due := p.start.Add(time.Duration(ts) * time.Second / time.Duration(p.rate))
	d := time.Until(due)
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
