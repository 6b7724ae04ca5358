// Package features detects which optional host subsystems are present.
// Detection runs once at startup; the resulting FeatureSet is read-only for
// the rest of the process lifetime.
package features

import "time"

// Capability identifies one optional subsystem. The set is closed: collectors
// are bound to these constants at build time.
type Capability string

const (
	Sensors   Capability = "sensors"
	GPUNvidia Capability = "gpu-nvidia"
	GPUAMD    Capability = "gpu-amd"
	GPUIntel  Capability = "gpu-intel"
	ZFS       Capability = "zfs"
	VMQemu    Capability = "vm-qemu"
	VMLXC     Capability = "vm-lxc"
	SMART     Capability = "smart"
	IPMI      Capability = "ipmi"
)

// All returns every known capability in a fixed order.
func All() []Capability {
	return []Capability{
		Sensors,
		GPUNvidia,
		GPUAMD,
		GPUIntel,
		ZFS,
		VMQemu,
		VMLXC,
		SMART,
		IPMI,
	}
}

// FeatureSet is the immutable result of capability detection.
type FeatureSet struct {
	detected   map[Capability]bool
	detectedAt time.Time
}

// NewFeatureSet builds a FeatureSet from an explicit capability map. Used by
// the detector and by tests that need a fixed environment.
func NewFeatureSet(detected map[Capability]bool) *FeatureSet {
	m := make(map[Capability]bool, len(detected))
	for c, ok := range detected {
		m[c] = ok
	}
	return &FeatureSet{detected: m, detectedAt: time.Now()}
}

// Enabled reports whether the capability was detected.
func (fs *FeatureSet) Enabled(c Capability) bool {
	return fs.detected[c]
}

// DetectedAt returns when detection ran.
func (fs *FeatureSet) DetectedAt() time.Time {
	return fs.detectedAt
}

// EnabledList returns the detected capabilities in the order of All.
func (fs *FeatureSet) EnabledList() []Capability {
	var out []Capability
	for _, c := range All() {
		if fs.detected[c] {
			out = append(out, c)
		}
	}
	return out
}
