// Package smart reports disk health via smartctl's JSON output.
package smart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

// ATA attribute ids carrying reallocation state.
const (
	attrReallocatedSectors = 5
	attrPendingSectors     = 197
)

var diskLabels = []string{"device", "model"}

type smartReport struct {
	ModelName   string `json:"model_name"`
	SmartStatus struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	Temperature struct {
		Current float64 `json:"current"`
	} `json:"temperature"`
	PowerOnTime struct {
		Hours float64 `json:"hours"`
	} `json:"power_on_time"`
	PowerCycleCount float64 `json:"power_cycle_count"`
	ATAAttributes   struct {
		Table []struct {
			ID  int `json:"id"`
			Raw struct {
				Value float64 `json:"value"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
}

type Collector struct {
	logger zerolog.Logger
	run    func(ctx context.Context, args ...string) (string, error)
}

func New(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger.With().Str("collector", "smart").Logger(),
		run:    runSmartctl,
	}
}

// runSmartctl keeps stdout when smartctl exits nonzero: the tool sets exit
// bits for failing disks while still printing a complete report.
func runSmartctl(ctx context.Context, args ...string) (string, error) {
	if _, err := exec.LookPath("smartctl"); err != nil {
		return "", fmt.Errorf("smartctl not found: %w", err)
	}

	out, err := exec.CommandContext(ctx, "smartctl", args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("smartctl: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) > 0 {
			return string(out), nil
		}
		return "", fmt.Errorf("smartctl: %w", err)
	}
	return string(out), nil
}

func (c *Collector) Name() string {
	return "smart"
}

func (c *Collector) Requires() features.Capability {
	return features.SMART
}

func (c *Collector) Describe() []registry.Desc {
	return []registry.Desc{
		{Name: "node_smart_healthy", Help: "SMART overall health assessment (1=passed)", Kind: registry.Gauge, Labels: diskLabels, ReplacePerCycle: true},
		{Name: "node_smart_temperature_celsius", Help: "Disk temperature", Kind: registry.Gauge, Labels: diskLabels, ReplacePerCycle: true},
		{Name: "node_smart_power_on_hours_total", Help: "Disk power-on hours", Kind: registry.Counter, Labels: diskLabels, ReplacePerCycle: true},
		{Name: "node_smart_power_cycles_total", Help: "Disk power cycle count", Kind: registry.Counter, Labels: diskLabels, ReplacePerCycle: true},
		{Name: "node_smart_reallocated_sectors", Help: "Reallocated sector count", Kind: registry.Gauge, Labels: diskLabels, ReplacePerCycle: true},
		{Name: "node_smart_pending_sectors", Help: "Current pending sector count", Kind: registry.Gauge, Labels: diskLabels, ReplacePerCycle: true},
	}
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	devices, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}

	var samples []registry.Sample
	var errs []error
	for _, dev := range devices {
		devSamples, err := c.collectDevice(ctx, dev)
		if err != nil {
			c.logger.Warn().Err(err).Str("device", dev).Msg("device report failed")
			errs = append(errs, fmt.Errorf("%s: %w", dev, err))
			continue
		}
		samples = append(samples, devSamples...)
	}

	if len(errs) > 0 {
		return samples, fmt.Errorf("smart collection: %v", errs)
	}
	return samples, nil
}

// scan parses smartctl --scan, one "/dev/sda -d scsi # ..." line per device.
func (c *Collector) scan(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "--scan")
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, line := range strings.Split(out, "\n") {
		fields := common.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		devices = append(devices, fields[0])
	}
	return devices, nil
}

func (c *Collector) collectDevice(ctx context.Context, dev string) ([]registry.Sample, error) {
	out, err := c.run(ctx, "-a", "-j", dev)
	if err != nil {
		return nil, err
	}

	var report smartReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	labels := []string{dev, report.ModelName}
	healthy := 0.0
	if report.SmartStatus.Passed {
		healthy = 1.0
	}
	samples := []registry.Sample{
		{Name: "node_smart_healthy", LabelValues: labels, Value: healthy},
		{Name: "node_smart_temperature_celsius", LabelValues: labels, Value: report.Temperature.Current},
		{Name: "node_smart_power_on_hours_total", LabelValues: labels, Value: report.PowerOnTime.Hours},
		{Name: "node_smart_power_cycles_total", LabelValues: labels, Value: report.PowerCycleCount},
	}

	for _, attr := range report.ATAAttributes.Table {
		switch attr.ID {
		case attrReallocatedSectors:
			samples = append(samples, registry.Sample{Name: "node_smart_reallocated_sectors", LabelValues: labels, Value: attr.Raw.Value})
		case attrPendingSectors:
			samples = append(samples, registry.Sample{Name: "node_smart_pending_sectors", LabelValues: labels, Value: attr.Raw.Value})
		}
	}
	return samples, nil
}
