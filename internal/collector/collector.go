// Package collector defines the uniform collector contract and drives the
// periodic collection cycles.
package collector

import (
	"context"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/base"
	"proxmox-adaptive-exporter/internal/modules/gpu"
	"proxmox-adaptive-exporter/internal/modules/ipmi"
	"proxmox-adaptive-exporter/internal/modules/sensors"
	"proxmox-adaptive-exporter/internal/modules/smart"
	"proxmox-adaptive-exporter/internal/modules/vm"
	"proxmox-adaptive-exporter/internal/modules/zfs"
	"proxmox-adaptive-exporter/internal/registry"
)

// Collector turns one subsystem's data into samples. Implementations must
// honor the context deadline in Collect and report failures through the
// returned error, never by panicking.
type Collector interface {
	// Name is the unique collector identifier used in instrumentation labels.
	Name() string

	// Requires returns the capability gating this collector, or "" for the
	// always-on base collector.
	Requires() features.Capability

	// Describe declares the instruments this collector emits. Called once at
	// startup for registration.
	Describe() []registry.Desc

	// Collect gathers current samples. On partial failure it may return both
	// samples and an error; the loop discards the samples and keeps the
	// previous cycle's values.
	Collect(ctx context.Context) ([]registry.Sample, error)
}

// Constructor builds one collector. The table below is the closed mapping
// from capability to collector; there is no runtime dispatch beyond it.
type Constructor func(logger zerolog.Logger) Collector

var builtin = []struct {
	capability features.Capability
	construct  Constructor
}{
	{features.Sensors, func(l zerolog.Logger) Collector { return sensors.New(l) }},
	{features.GPUNvidia, func(l zerolog.Logger) Collector { return gpu.NewNvidia(l) }},
	{features.GPUAMD, func(l zerolog.Logger) Collector { return gpu.NewAMD(l) }},
	{features.GPUIntel, func(l zerolog.Logger) Collector { return gpu.NewIntel(l) }},
	{features.ZFS, func(l zerolog.Logger) Collector { return zfs.New(l) }},
	{features.VMQemu, func(l zerolog.Logger) Collector { return vm.NewQemu(l) }},
	{features.VMLXC, func(l zerolog.Logger) Collector { return vm.NewLXC(l) }},
	{features.SMART, func(l zerolog.Logger) Collector { return smart.New(l) }},
	{features.IPMI, func(l zerolog.Logger) Collector { return ipmi.New(l) }},
}

// BuildSet constructs the enabled collector set for the detected features:
// the base collector plus one collector per present capability, in a fixed
// order so restarts produce an identical instrument set.
func BuildSet(fs *features.FeatureSet, logger zerolog.Logger) []Collector {
	set := []Collector{base.New(logger)}
	for _, entry := range builtin {
		if fs.Enabled(entry.capability) {
			set = append(set, entry.construct(logger))
		}
	}
	return set
}

// RegisterInstruments registers every collector's instruments. A schema
// conflict here is a programming error and fatal at startup.
func RegisterInstruments(reg *registry.Registry, set []Collector) error {
	for _, c := range set {
		for _, desc := range c.Describe() {
			if err := reg.Register(c.Name(), desc); err != nil {
				return err
			}
		}
	}
	return nil
}
