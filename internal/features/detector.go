package features

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProbeFunc tests one capability. It must honor the context deadline and
// report false on any failure; a probe result is never an error.
type ProbeFunc func(ctx context.Context) bool

// Detector runs all capability probes once and produces a FeatureSet.
type Detector struct {
	logger    zerolog.Logger
	timeout   time.Duration
	overrides map[Capability]bool
	probes    map[Capability]ProbeFunc
}

// NewDetector builds a detector with the builtin probe table. Overrides
// force a capability on or off without running its probe.
func NewDetector(logger zerolog.Logger, timeout time.Duration, overrides map[string]bool) *Detector {
	ov := make(map[Capability]bool, len(overrides))
	for name, enabled := range overrides {
		ov[Capability(name)] = enabled
	}
	return &Detector{
		logger:    logger,
		timeout:   timeout,
		overrides: ov,
		probes:    builtinProbes(),
	}
}

// Detect runs every probe concurrently, each bounded by the probe timeout,
// and returns the immutable result. Probe failures are logged at debug level
// and reported as "not detected".
func (d *Detector) Detect(ctx context.Context) *FeatureSet {
	detected := make(map[Capability]bool, len(d.probes))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range All() {
		if forced, ok := d.overrides[c]; ok {
			detected[c] = forced
			d.logger.Info().Str("capability", string(c)).Bool("enabled", forced).
				Msg("Capability forced by configuration")
			continue
		}

		probe, ok := d.probes[c]
		if !ok {
			detected[c] = false
			continue
		}

		wg.Add(1)
		go func(c Capability, probe ProbeFunc) {
			defer wg.Done()
			ok := d.runProbe(ctx, c, probe)
			mu.Lock()
			detected[c] = ok
			mu.Unlock()
		}(c, probe)
	}

	wg.Wait()

	fs := NewFeatureSet(detected)
	d.logger.Info().
		Strs("enabled", capabilityNames(fs.EnabledList())).
		Msg("Capability detection complete")
	return fs
}

// runProbe bounds one probe with the configured timeout and absorbs panics:
// a broken probe means "not detected", never a crashed exporter.
func (d *Detector) runProbe(ctx context.Context, c Capability, probe ProbeFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug().Str("capability", string(c)).Interface("panic", r).
				Msg("Probe panicked, treating as not detected")
			ok = false
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	ok = probe(probeCtx)
	d.logger.Debug().
		Str("capability", string(c)).
		Bool("detected", ok).
		Dur("took", time.Since(start)).
		Msg("Probe finished")
	return ok
}

func capabilityNames(cs []Capability) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	return names
}
