package gpu

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

// AMD reads amdgpu state from the DRM sysfs tree: gpu_busy_percent,
// mem_info_vram_*, and the card's hwmon temperature and power files.
type AMD struct {
	logger zerolog.Logger
	root   string
}

func NewAMD(logger zerolog.Logger) *AMD {
	return &AMD{
		logger: logger.With().Str("collector", "gpu-amd").Logger(),
		root:   drmRoot,
	}
}

func (c *AMD) Name() string {
	return "gpu-amd"
}

func (c *AMD) Requires() features.Capability {
	return features.GPUAMD
}

func (c *AMD) Describe() []registry.Desc {
	return sharedDescs()
}

func (c *AMD) Collect(ctx context.Context) ([]registry.Sample, error) {
	cards, err := filepath.Glob(filepath.Join(c.root, "card[0-9]*"))
	if err != nil {
		return nil, err
	}

	var samples []registry.Sample
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return samples, err
		}

		device := filepath.Join(card, "device")
		vendor, err := readTrimmed(filepath.Join(device, "vendor"))
		if err != nil || vendor != "0x1002" {
			continue
		}

		index := strings.TrimPrefix(filepath.Base(card), "card")
		labels := []string{index, "amdgpu", "amd"}
		add := func(name string, value float64) {
			samples = append(samples, registry.Sample{Name: name, LabelValues: labels, Value: value})
		}

		if v, ok := readValue(filepath.Join(device, "gpu_busy_percent")); ok {
			add("node_gpu_utilization_percent", v)
		}
		if v, ok := readValue(filepath.Join(device, "mem_info_vram_total")); ok {
			add("node_gpu_memory_total_bytes", v)
		}
		if v, ok := readValue(filepath.Join(device, "mem_info_vram_used")); ok {
			add("node_gpu_memory_used_bytes", v)
		}

		// One hwmon directory per card; temp in millidegrees, power in
		// microwatts.
		hwmons, _ := filepath.Glob(filepath.Join(device, "hwmon", "hwmon*"))
		for _, hwmon := range hwmons {
			if v, ok := readValue(filepath.Join(hwmon, "temp1_input")); ok {
				add("node_gpu_temp_celsius", v/1000)
			}
			if v, ok := readValue(filepath.Join(hwmon, "power1_average")); ok {
				add("node_gpu_power_draw_watts", v/1_000_000)
			}
		}
	}

	return samples, nil
}

func readValue(path string) (float64, bool) {
	raw, err := readTrimmed(path)
	if err != nil {
		return 0, false
	}
	value, err := common.ParseFloat(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
