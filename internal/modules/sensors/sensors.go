// Package sensors reads temperature, fan, power, voltage, and current
// readings from the hwmon sysfs tree.
package sensors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

const defaultHwmonRoot = "/sys/class/hwmon"

// sensorKind maps one hwmon input-file prefix to its instrument and the
// divisor converting the raw sysfs integer to the exported unit.
var sensorKinds = []struct {
	prefix     string
	instrument string
	divisor    float64
}{
	{"temp", "node_hwmon_temp_celsius", 1000},      // millidegrees
	{"fan", "node_hwmon_fan_rpm", 1},               // rpm
	{"in", "node_hwmon_voltage_volts", 1000},       // millivolts
	{"curr", "node_hwmon_current_amps", 1000},      // milliamps
	{"power", "node_hwmon_power_watts", 1_000_000}, // microwatts
}

type Collector struct {
	logger zerolog.Logger
	root   string
}

func New(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger.With().Str("collector", "sensors").Logger(),
		root:   defaultHwmonRoot,
	}
}

func (c *Collector) Name() string {
	return "sensors"
}

func (c *Collector) Requires() features.Capability {
	return features.Sensors
}

func (c *Collector) Describe() []registry.Desc {
	labels := []string{"chip", "sensor"}
	descs := make([]registry.Desc, 0, len(sensorKinds))
	for _, kind := range sensorKinds {
		descs = append(descs, registry.Desc{
			Name:            kind.instrument,
			Help:            fmt.Sprintf("Hardware monitor %s reading", kind.prefix),
			Kind:            registry.Gauge,
			Labels:          labels,
			ReplacePerCycle: true,
		})
	}
	return descs
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	chips, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("read hwmon root: %w", err)
	}

	var samples []registry.Sample
	for _, chip := range chips {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		chipDir := filepath.Join(c.root, chip.Name())
		chipName, err := readTrimmed(filepath.Join(chipDir, "name"))
		if err != nil {
			continue
		}
		samples = append(samples, c.collectChip(chipDir, chipName)...)
	}
	return samples, nil
}

// collectChip reads every <prefix><n>_input file in one hwmon directory.
// The sensor label comes from the matching _label file when present.
func (c *Collector) collectChip(chipDir, chipName string) []registry.Sample {
	var samples []registry.Sample
	for _, kind := range sensorKinds {
		inputs, err := filepath.Glob(filepath.Join(chipDir, kind.prefix+"*_input"))
		if err != nil {
			continue
		}
		for _, input := range inputs {
			raw, err := readTrimmed(input)
			if err != nil {
				continue
			}
			value, err := common.ParseFloat(raw)
			if err != nil {
				c.logger.Debug().Str("file", input).Str("raw", raw).Msg("Unparseable sensor reading")
				continue
			}

			sensor := strings.TrimSuffix(filepath.Base(input), "_input")
			if label, err := readTrimmed(strings.TrimSuffix(input, "_input") + "_label"); err == nil {
				sensor = sanitizeLabel(label)
			}

			samples = append(samples, registry.Sample{
				Name:        kind.instrument,
				LabelValues: []string{chipName, sensor},
				Value:       value / kind.divisor,
			})
		}
	}
	return samples
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func sanitizeLabel(label string) string {
	return strings.NewReplacer(" ", "_", ".", "_").Replace(label)
}
