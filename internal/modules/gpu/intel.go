package gpu

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/registry"
)

// Intel reads discrete Intel GPU state from the DRM sysfs tree. The i915
// driver exposes little beyond clocks there, so this collector reports the
// current graphics clock per card.
type Intel struct {
	logger zerolog.Logger
	root   string
}

func NewIntel(logger zerolog.Logger) *Intel {
	return &Intel{
		logger: logger.With().Str("collector", "gpu-intel").Logger(),
		root:   drmRoot,
	}
}

func (c *Intel) Name() string {
	return "gpu-intel"
}

func (c *Intel) Requires() features.Capability {
	return features.GPUIntel
}

func (c *Intel) Describe() []registry.Desc {
	return sharedDescs()
}

func (c *Intel) Collect(ctx context.Context) ([]registry.Sample, error) {
	cards, err := filepath.Glob(filepath.Join(c.root, "card[0-9]*"))
	if err != nil {
		return nil, err
	}

	var samples []registry.Sample
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return samples, err
		}

		vendor, err := readTrimmed(filepath.Join(card, "device", "vendor"))
		if err != nil || vendor != "0x8086" {
			continue
		}

		index := strings.TrimPrefix(filepath.Base(card), "card")
		if v, ok := readValue(filepath.Join(card, "gt_cur_freq_mhz")); ok {
			samples = append(samples, registry.Sample{
				Name:        "node_gpu_clock_hertz",
				LabelValues: []string{index, "i915", "intel"},
				Value:       v * 1_000_000,
			})
		}
	}

	return samples, nil
}
