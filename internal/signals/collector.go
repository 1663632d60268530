package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Unsupported replaces the value of a collector that failed or timed out.
	Unsupported = "unsupported"
	// Disabled replaces the value of a collector switched off by preference.
	Disabled = "disabled"

	DefaultProbeTimeout = 3 * time.Second
)

// Signals maps collector name to its value. Every gathered collector has a key.
type Signals map[string]any

// Collector produces one named signal.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (any, error)
}

// Probe is a Collector backed by a function, bounded by its own timeout.
type Probe struct {
	name    string
	timeout time.Duration
	fn      func(ctx context.Context) (any, error)
}

func NewProbe(name string, timeout time.Duration, fn func(ctx context.Context) (any, error)) *Probe {
	return &Probe{name: name, timeout: timeout, fn: fn}
}

// Static wraps a synchronous extraction that needs no context.
func Static(name string, fn func() (any, error)) *Probe {
	return &Probe{name: name, fn: func(context.Context) (any, error) { return fn() }}
}

func (p *Probe) Name() string { return p.name }

func (p *Probe) Timeout() time.Duration { return p.timeout }

func (p *Probe) Collect(ctx context.Context) (any, error) {
	return p.fn(ctx)
}

// Gatherer runs collectors concurrently and waits for all of them.
type Gatherer struct {
	logger  *logrus.Logger
	timeout time.Duration
}

func NewGatherer(logger *logrus.Logger, timeout time.Duration) *Gatherer {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gatherer{logger: logger, timeout: timeout}
}

// Gather never returns partial results: a collector that errors, panics or
// outlives its timeout contributes Unsupported.
func (g *Gatherer) Gather(ctx context.Context, collectors ...Collector) Signals {
	results := make([]any, len(collectors))

	group, gctx := errgroup.WithContext(ctx)
	for i, c := range collectors {
		group.Go(func() error {
			results[i] = g.resolve(gctx, c)
			return nil
		})
	}
	_ = group.Wait()

	out := make(Signals, len(collectors))
	for i, c := range collectors {
		out[c.Name()] = results[i]
	}
	return out
}

type outcome struct {
	value any
	err   error
}

func (g *Gatherer) resolve(ctx context.Context, c Collector) any {
	timeout := g.timeout
	if t, ok := c.(interface{ Timeout() time.Duration }); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("collector panicked: %v", r)}
			}
		}()
		v, err := c.Collect(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			g.logger.WithError(res.err).WithField("collector", c.Name()).Debug("collector failed")
			return Unsupported
		}
		if res.value == nil {
			return Unsupported
		}
		return res.value
	case <-ctx.Done():
		g.logger.WithField("collector", c.Name()).WithField("timeout", timeout).Debug("collector timed out")
		return Unsupported
	}
}
