// Package gpu reads per-vendor GPU metrics: nvidia-smi for NVIDIA, the
// amdgpu and i915 sysfs trees for AMD and Intel. All vendors share the same
// metric families, distinguished by the vendor label.
package gpu

import (
	"os"
	"strings"

	"proxmox-adaptive-exporter/internal/registry"
)

const drmRoot = "/sys/class/drm"

var gpuLabels = []string{"gpu", "name", "vendor"}

// sharedDescs are the families every vendor collector registers; the
// registry deduplicates identical registrations and replacement is scoped
// per collector.
func sharedDescs() []registry.Desc {
	return []registry.Desc{
		{Name: "node_gpu_temp_celsius", Help: "GPU temperature", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
		{Name: "node_gpu_utilization_percent", Help: "GPU utilization", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
		{Name: "node_gpu_memory_total_bytes", Help: "GPU memory total", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
		{Name: "node_gpu_memory_used_bytes", Help: "GPU memory used", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
		{Name: "node_gpu_power_draw_watts", Help: "GPU power draw", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
		{Name: "node_gpu_clock_hertz", Help: "GPU graphics clock", Kind: registry.Gauge, Labels: gpuLabels, ReplacePerCycle: true},
	}
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
