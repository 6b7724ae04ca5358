package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/metrics"
	"proxmox-adaptive-exporter/internal/registry"
)

// Loop runs collection cycles at a fixed interval. Cycles never overlap: a
// new cycle starts only after the previous one finished or hit the cycle
// deadline. All registry writes happen on the loop goroutine.
type Loop struct {
	collectors []Collector
	registry   *registry.Registry
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	interval   time.Duration
	timeout    time.Duration
}

// NewLoop wires a loop over the enabled collector set. timeout bounds each
// collector within a cycle; the cycle itself is bounded by the interval.
func NewLoop(set []Collector, reg *registry.Registry, m *metrics.Metrics, logger zerolog.Logger,
	interval, timeout time.Duration) *Loop {
	return &Loop{
		collectors: set,
		registry:   reg,
		metrics:    m,
		logger:     logger,
		interval:   interval,
		timeout:    timeout,
	}
}

// Run collects immediately, then on every tick until the context is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Int("collectors", len(l.collectors)).
		Dur("interval", l.interval).
		Dur("command_timeout", l.timeout).
		Msg("Starting collection loop")

	l.runCycle(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Stopping collection loop")
			return ctx.Err()
		case <-ticker.C:
			l.runCycle(ctx)
		}
	}
}

type result struct {
	name    string
	samples []registry.Sample
	err     error
	took    time.Duration
}

// runCycle fans every collector out into its own goroutine with an
// individual timeout, merges the results serially, and publishes one
// snapshot. Collectors still running at the cycle deadline are abandoned and
// counted as errors; the buffered channel lets their goroutines finish
// without leaking.
func (l *Loop) runCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	results := make(chan result, len(l.collectors))
	for _, c := range l.collectors {
		go func(c Collector) {
			collectCtx, cancel := context.WithTimeout(cycleCtx, l.timeout)
			defer cancel()

			start := time.Now()
			samples, err := c.Collect(collectCtx)
			results <- result{name: c.Name(), samples: samples, err: err, took: time.Since(start)}
		}(c)
	}

	pending := make(map[string]bool, len(l.collectors))
	for _, c := range l.collectors {
		pending[c.Name()] = true
	}

	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.name)
			l.handleResult(res)
		case <-cycleCtx.Done():
			for name := range pending {
				// The collector never finished, so there is no duration to
				// record; the gauge keeps its last completed value.
				l.logger.Warn().Str("collector", name).Msg("Collector abandoned at cycle deadline")
				l.metrics.CollectionErrors.WithLabelValues(name).Inc()
				l.metrics.CollectionSuccess.WithLabelValues(name).Set(0)
			}
			pending = nil
		}
	}

	l.registry.Publish()
	l.logger.Debug().Dur("took", time.Since(cycleStart)).Msg("Collection cycle complete")
}

func (l *Loop) handleResult(res result) {
	l.metrics.CollectionDuration.WithLabelValues(res.name).Set(res.took.Seconds())

	if res.err != nil {
		// Previously published samples stay as they were; stale beats absent.
		l.logger.Warn().Err(res.err).Str("collector", res.name).Dur("took", res.took).
			Msg("Collection failed")
		l.metrics.CollectionErrors.WithLabelValues(res.name).Inc()
		l.metrics.CollectionSuccess.WithLabelValues(res.name).Set(0)
		return
	}

	if err := l.registry.Apply(res.name, res.samples); err != nil {
		l.logger.Warn().Err(err).Str("collector", res.name).Msg("Rejected samples")
		l.metrics.CollectionErrors.WithLabelValues(res.name).Inc()
		l.metrics.CollectionSuccess.WithLabelValues(res.name).Set(0)
		return
	}

	l.metrics.CollectionSuccess.WithLabelValues(res.name).Set(1)
}
