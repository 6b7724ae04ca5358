// Package zfs reads ARC statistics from the kernel's arcstats procfile and
// per-pool capacity and health from zpool.
package zfs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

const defaultArcstatsPath = "/proc/spl/kstat/zfs/arcstats"

// arcstatFields maps arcstats entries to their instruments.
var arcstatFields = map[string]string{
	"size":   "node_zfs_arc_size_bytes",
	"c":      "node_zfs_arc_target_bytes",
	"c_min":  "node_zfs_arc_min_bytes",
	"c_max":  "node_zfs_arc_max_bytes",
	"hits":   "node_zfs_arc_hits_total",
	"misses": "node_zfs_arc_misses_total",
}

type Collector struct {
	logger       zerolog.Logger
	arcstatsPath string
	run          func(ctx context.Context, name string, args ...string) (string, error)
}

func New(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:       logger.With().Str("collector", "zfs").Logger(),
		arcstatsPath: defaultArcstatsPath,
		run:          common.RunCommand,
	}
}

func (c *Collector) Name() string {
	return "zfs"
}

func (c *Collector) Requires() features.Capability {
	return features.ZFS
}

func (c *Collector) Describe() []registry.Desc {
	poolLabels := []string{"pool"}
	return []registry.Desc{
		{Name: "node_zfs_arc_size_bytes", Help: "ZFS ARC size", Kind: registry.Gauge},
		{Name: "node_zfs_arc_target_bytes", Help: "ZFS ARC target size", Kind: registry.Gauge},
		{Name: "node_zfs_arc_min_bytes", Help: "ZFS ARC minimum size", Kind: registry.Gauge},
		{Name: "node_zfs_arc_max_bytes", Help: "ZFS ARC maximum size", Kind: registry.Gauge},
		{Name: "node_zfs_arc_hits_total", Help: "ZFS ARC hits", Kind: registry.Counter},
		{Name: "node_zfs_arc_misses_total", Help: "ZFS ARC misses", Kind: registry.Counter},
		{Name: "node_zfs_zpool_size_bytes", Help: "ZFS pool size", Kind: registry.Gauge, Labels: poolLabels, ReplacePerCycle: true},
		{Name: "node_zfs_zpool_allocated_bytes", Help: "ZFS pool allocated", Kind: registry.Gauge, Labels: poolLabels, ReplacePerCycle: true},
		{Name: "node_zfs_zpool_free_bytes", Help: "ZFS pool free", Kind: registry.Gauge, Labels: poolLabels, ReplacePerCycle: true},
		{Name: "node_zfs_zpool_fragmentation_percent", Help: "ZFS pool fragmentation", Kind: registry.Gauge, Labels: poolLabels, ReplacePerCycle: true},
		{Name: "node_zfs_zpool_health", Help: "ZFS pool health (0=online, 1=degraded, 2=faulted, 3=other)", Kind: registry.Gauge, Labels: poolLabels, ReplacePerCycle: true},
	}
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	var samples []registry.Sample
	var errs []error

	arcSamples, err := c.collectARC()
	if err != nil {
		errs = append(errs, err)
	}
	samples = append(samples, arcSamples...)

	poolSamples, err := c.collectPools(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	samples = append(samples, poolSamples...)

	if len(errs) > 0 {
		return samples, fmt.Errorf("zfs collection: %v", errs)
	}
	return samples, nil
}

func (c *Collector) collectARC() ([]registry.Sample, error) {
	data, err := os.ReadFile(c.arcstatsPath)
	if err != nil {
		return nil, fmt.Errorf("read arcstats: %w", err)
	}
	return parseArcstats(string(data)), nil
}

// parseArcstats handles the kstat table format: two header lines, then
// "name type data" rows.
func parseArcstats(data string) []registry.Sample {
	var samples []registry.Sample
	for _, line := range strings.Split(data, "\n") {
		fields := common.Fields(line)
		if len(fields) != 3 {
			continue
		}
		instrument, ok := arcstatFields[fields[0]]
		if !ok {
			continue
		}
		value, err := common.ParseFloat(fields[2])
		if err != nil {
			continue
		}
		samples = append(samples, registry.Sample{Name: instrument, Value: value})
	}
	return samples
}

func (c *Collector) collectPools(ctx context.Context) ([]registry.Sample, error) {
	out, err := c.run(ctx, "zpool", "list", "-Hpo", "name,size,alloc,free,frag,health")
	if err != nil {
		return nil, err
	}
	return parseZpoolList(out)
}

// parseZpoolList handles one tab-separated row per pool, as produced by
// zpool list -Hp.
func parseZpoolList(out string) ([]registry.Sample, error) {
	var samples []registry.Sample
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			return samples, fmt.Errorf("unexpected zpool list line %q", line)
		}

		pool := fields[0]
		add := func(name, raw string) {
			value, err := common.ParseFloat(raw)
			if err != nil {
				return
			}
			samples = append(samples, registry.Sample{Name: name, LabelValues: []string{pool}, Value: value})
		}
		add("node_zfs_zpool_size_bytes", fields[1])
		add("node_zfs_zpool_allocated_bytes", fields[2])
		add("node_zfs_zpool_free_bytes", fields[3])
		add("node_zfs_zpool_fragmentation_percent", fields[4])

		samples = append(samples, registry.Sample{
			Name:        "node_zfs_zpool_health",
			LabelValues: []string{pool},
			Value:       healthCode(fields[5]),
		})
	}
	return samples, nil
}

func healthCode(health string) float64 {
	switch strings.ToUpper(strings.TrimSpace(health)) {
	case "ONLINE":
		return 0
	case "DEGRADED":
		return 1
	case "FAULTED":
		return 2
	default:
		return 3
	}
}
