// Package registry holds the adaptive metric surface: instrument schemas
// registered at startup, the sample state written by the collection loop,
// and the immutable snapshot served to scrapes.
//
// Synchronization contract: Register is called during startup wiring only.
// Apply and Publish are called by the collection loop goroutine, one cycle
// at a time. Scrapes read the last published snapshot through the
// prometheus.Collector implementation and never block the writer.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind is the instrument type.
type Kind int

const (
	Gauge Kind = iota
	Counter
)

// Errors reported by the registry.
var (
	ErrSchemaConflict    = errors.New("instrument already registered with a different schema")
	ErrUnknownInstrument = errors.New("sample for unregistered instrument")
	ErrLabelArity        = errors.New("sample label count does not match instrument schema")
)

// Desc declares one instrument. Name is unique process-wide.
type Desc struct {
	Name   string
	Help   string
	Kind   Kind
	Labels []string

	// ReplacePerCycle marks inventory-style families: on every successful
	// collect of the owning collector, series not re-emitted are removed.
	// Families without it keep their last value until overwritten.
	ReplacePerCycle bool
}

// Sample is one value for one instrument at one label-value combination.
type Sample struct {
	Name        string
	LabelValues []string
	Value       float64
}

// Series is one rendered snapshot entry.
type Series struct {
	Name        string
	LabelValues []string
	Value       float64
}

type instrument struct {
	desc     Desc
	promDesc *prometheus.Desc
}

// entry is one stored sample plus the collector that produced it; ownership
// scopes per-cycle replacement when several collectors share a family.
type entry struct {
	sample Sample
	owner  string
}

type snapshot struct {
	series  []Series
	takenAt time.Time
}

// Registry implements prometheus.Collector over the last published snapshot.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*instrument
	byOwner     map[string][]string

	// state is owned by the collection loop; see the package comment.
	state map[string]map[string]entry

	published atomic.Pointer[snapshot]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		instruments: make(map[string]*instrument),
		byOwner:     make(map[string][]string),
		state:       make(map[string]map[string]entry),
	}
}

// Register adds an instrument for the named collector. Registering the same
// name again with an identical schema is allowed (collectors may share a
// family, e.g. the GPU vendors); a different kind or label set is
// ErrSchemaConflict.
func (r *Registry) Register(owner string, d Desc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instruments[d.Name]; ok {
		if !schemaEqual(existing.desc, d) {
			return fmt.Errorf("%w: %s", ErrSchemaConflict, d.Name)
		}
		r.addOwner(owner, d.Name)
		return nil
	}

	r.instruments[d.Name] = &instrument{
		desc:     d,
		promDesc: prometheus.NewDesc(d.Name, d.Help, d.Labels, nil),
	}
	r.addOwner(owner, d.Name)
	r.state[d.Name] = make(map[string]entry)
	return nil
}

func (r *Registry) addOwner(owner, name string) {
	for _, existing := range r.byOwner[owner] {
		if existing == name {
			return
		}
	}
	r.byOwner[owner] = append(r.byOwner[owner], name)
}

func schemaEqual(a, b Desc) bool {
	if a.Kind != b.Kind || len(a.Labels) != len(b.Labels) {
		return false
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			return false
		}
	}
	return true
}

// Apply merges one collector's accepted samples into the working state.
// Called by the loop after a successful collect only; a failed collect
// leaves previous samples untouched. Families the owner registered with
// ReplacePerCycle are replaced for that owner, so its series absent from
// this batch disappear while other owners' series in a shared family stay.
// Invalid samples are skipped and reported; valid ones still apply.
func (r *Registry) Apply(owner string, samples []Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make(map[string]map[string]entry)
	for _, name := range r.byOwner[owner] {
		if r.instruments[name].desc.ReplacePerCycle {
			kept := make(map[string]entry)
			for key, e := range r.state[name] {
				if e.owner != owner {
					kept[key] = e
				}
			}
			fresh[name] = kept
		}
	}

	var invalid []error
	for _, s := range samples {
		inst, ok := r.instruments[s.Name]
		if !ok {
			invalid = append(invalid, fmt.Errorf("%w: %s", ErrUnknownInstrument, s.Name))
			continue
		}
		if len(s.LabelValues) != len(inst.desc.Labels) {
			invalid = append(invalid, fmt.Errorf("%w: %s got %d want %d",
				ErrLabelArity, s.Name, len(s.LabelValues), len(inst.desc.Labels)))
			continue
		}

		key := labelKey(s.LabelValues)
		if replaced, ok := fresh[s.Name]; ok {
			replaced[key] = entry{sample: s, owner: owner}
		} else {
			r.state[s.Name][key] = entry{sample: s, owner: owner}
		}
	}

	for name, series := range fresh {
		r.state[name] = series
	}

	if len(invalid) > 0 {
		return fmt.Errorf("rejected %d samples from %s: %v", len(invalid), owner, invalid)
	}
	return nil
}

// Publish freezes the current working state into the snapshot served to
// scrapes. Called once at the end of every completed cycle.
func (r *Registry) Publish() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var series []Series
	for name, byLabel := range r.state {
		for _, e := range byLabel {
			series = append(series, Series{Name: name, LabelValues: e.sample.LabelValues, Value: e.sample.Value})
		}
	}
	sortSeries(series)

	r.published.Store(&snapshot{series: series, takenAt: time.Now()})
}

// Ready reports whether at least one cycle has been published.
func (r *Registry) Ready() bool {
	return r.published.Load() != nil
}

// Snapshot returns the last published series, ordered by instrument name
// then label values. Nil before the first Publish.
func (r *Registry) Snapshot() []Series {
	snap := r.published.Load()
	if snap == nil {
		return nil
	}
	return snap.series
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instruments {
		ch <- inst.promDesc
	}
}

// Collect implements prometheus.Collector by rendering the published
// snapshot as const metrics.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	snap := r.published.Load()
	if snap == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range snap.series {
		inst, ok := r.instruments[s.Name]
		if !ok {
			continue
		}
		valueType := prometheus.GaugeValue
		if inst.desc.Kind == Counter {
			valueType = prometheus.CounterValue
		}
		m, err := prometheus.NewConstMetric(inst.promDesc, valueType, s.Value, s.LabelValues...)
		if err != nil {
			continue
		}
		ch <- m
	}
}

func sortSeries(series []Series) {
	sort.Slice(series, func(i, j int) bool {
		if series[i].Name != series[j].Name {
			return series[i].Name < series[j].Name
		}
		return labelKey(series[i].LabelValues) < labelKey(series[j].LabelValues)
	})
}

func labelKey(values []string) string {
	return strings.Join(values, "\xff")
}
