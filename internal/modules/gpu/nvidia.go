package gpu

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

const nvidiaQuery = "index,name,temperature.gpu,utilization.gpu,memory.total,memory.used,power.draw"

// Nvidia reads GPU state through nvidia-smi's CSV query interface.
type Nvidia struct {
	logger zerolog.Logger
	run    func(ctx context.Context, name string, args ...string) (string, error)
}

func NewNvidia(logger zerolog.Logger) *Nvidia {
	return &Nvidia{
		logger: logger.With().Str("collector", "gpu-nvidia").Logger(),
		run:    common.RunCommand,
	}
}

func (c *Nvidia) Name() string {
	return "gpu-nvidia"
}

func (c *Nvidia) Requires() features.Capability {
	return features.GPUNvidia
}

func (c *Nvidia) Describe() []registry.Desc {
	return sharedDescs()
}

func (c *Nvidia) Collect(ctx context.Context) ([]registry.Sample, error) {
	out, err := c.run(ctx, "nvidia-smi",
		"--query-gpu="+nvidiaQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return parseNvidiaSMI(out)
}

// parseNvidiaSMI parses one CSV line per GPU in the order of nvidiaQuery.
// Fields nvidia-smi reports as "[N/A]" are skipped, not errors.
func parseNvidiaSMI(out string) ([]registry.Sample, error) {
	var samples []registry.Sample

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 7 {
			return samples, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		labels := []string{fields[0], fields[1], "nvidia"}
		add := func(name, raw string, scale float64) {
			value, err := common.ParseFloat(raw)
			if err != nil {
				return
			}
			samples = append(samples, registry.Sample{
				Name:        name,
				LabelValues: labels,
				Value:       value * scale,
			})
		}

		add("node_gpu_temp_celsius", fields[2], 1)
		add("node_gpu_utilization_percent", fields[3], 1)
		add("node_gpu_memory_total_bytes", fields[4], 1024*1024) // MiB
		add("node_gpu_memory_used_bytes", fields[5], 1024*1024)
		add("node_gpu_power_draw_watts", fields[6], 1)
	}

	return samples, nil
}
