// Package ipmi reads BMC sensor readings from ipmitool's sensor table.
package ipmi

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

// unitFamilies maps ipmitool unit strings to instruments.
var unitFamilies = map[string]string{
	"degrees c": "node_ipmi_temperature_celsius",
	"rpm":       "node_ipmi_fan_speed_rpm",
	"volts":     "node_ipmi_voltage_volts",
	"amps":      "node_ipmi_current_amps",
	"watts":     "node_ipmi_power_watts",
}

type Collector struct {
	logger zerolog.Logger
	run    func(ctx context.Context, name string, args ...string) (string, error)
}

func New(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger.With().Str("collector", "ipmi").Logger(),
		run:    common.RunCommand,
	}
}

func (c *Collector) Name() string {
	return "ipmi"
}

func (c *Collector) Requires() features.Capability {
	return features.IPMI
}

func (c *Collector) Describe() []registry.Desc {
	labels := []string{"sensor"}
	return []registry.Desc{
		{Name: "node_ipmi_temperature_celsius", Help: "IPMI temperature sensor reading", Kind: registry.Gauge, Labels: labels, ReplacePerCycle: true},
		{Name: "node_ipmi_fan_speed_rpm", Help: "IPMI fan speed", Kind: registry.Gauge, Labels: labels, ReplacePerCycle: true},
		{Name: "node_ipmi_voltage_volts", Help: "IPMI voltage sensor reading", Kind: registry.Gauge, Labels: labels, ReplacePerCycle: true},
		{Name: "node_ipmi_current_amps", Help: "IPMI current sensor reading", Kind: registry.Gauge, Labels: labels, ReplacePerCycle: true},
		{Name: "node_ipmi_power_watts", Help: "IPMI power sensor reading", Kind: registry.Gauge, Labels: labels, ReplacePerCycle: true},
	}
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	out, err := c.run(ctx, "ipmitool", "sensor")
	if err != nil {
		return nil, err
	}
	return parseSensorTable(out), nil
}

// parseSensorTable handles ipmitool sensor output, one pipe-separated row
// per sensor:
//
//	CPU Temp | 45.000 | degrees C | ok | ...
//
// Unreadable sensors report "na" and are skipped.
func parseSensorTable(out string) []registry.Sample {
	var samples []registry.Sample
	for _, line := range strings.Split(out, "\n") {
		cols := strings.Split(line, "|")
		if len(cols) < 3 {
			continue
		}

		name := strings.TrimSpace(cols[0])
		unit := strings.ToLower(strings.TrimSpace(cols[2]))
		instrument, ok := unitFamilies[unit]
		if !ok {
			continue
		}
		value, err := common.ParseFloat(cols[1])
		if err != nil {
			continue
		}

		samples = append(samples, registry.Sample{
			Name:        instrument,
			LabelValues: []string{name},
			Value:       value,
		})
	}
	return samples
}
