// Package base is the always-on collector for CPU, memory, filesystem,
// disk IO, and network counters.
package base

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

// Pseudo-filesystems excluded from filesystem metrics.
var excludedFstypes = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"devfs":    true,
	"overlay":  true,
	"squashfs": true,
}

type Collector struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Collector {
	return &Collector{logger: logger.With().Str("collector", "base").Logger()}
}

func (c *Collector) Name() string {
	return "base"
}

func (c *Collector) Requires() features.Capability {
	return ""
}

func (c *Collector) Describe() []registry.Desc {
	fsLabels := []string{"device", "mountpoint", "fstype"}
	return []registry.Desc{
		{Name: "node_load1", Help: "1 minute load average", Kind: registry.Gauge},
		{Name: "node_load5", Help: "5 minute load average", Kind: registry.Gauge},
		{Name: "node_load15", Help: "15 minute load average", Kind: registry.Gauge},
		{Name: "node_boot_time_seconds", Help: "Node boot time, in unixtime", Kind: registry.Gauge},
		{Name: "node_uptime_seconds", Help: "System uptime in seconds", Kind: registry.Gauge},
		{Name: "node_cpu_count", Help: "Number of logical CPUs", Kind: registry.Gauge},
		{Name: "node_cpu_usage_percent", Help: "Per-CPU usage percentage", Kind: registry.Gauge, Labels: []string{"cpu"}},
		{Name: "node_memory_bytes", Help: "Memory usage by type", Kind: registry.Gauge, Labels: []string{"type"}},
		{Name: "node_swap_bytes", Help: "Swap usage by type", Kind: registry.Gauge, Labels: []string{"type"}},
		{Name: "node_filesystem_size_bytes", Help: "Filesystem size", Kind: registry.Gauge, Labels: fsLabels, ReplacePerCycle: true},
		{Name: "node_filesystem_free_bytes", Help: "Filesystem free space", Kind: registry.Gauge, Labels: fsLabels, ReplacePerCycle: true},
		{Name: "node_disk_read_bytes_total", Help: "Disk bytes read", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_disk_written_bytes_total", Help: "Disk bytes written", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_disk_reads_completed_total", Help: "Disk reads completed", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_disk_writes_completed_total", Help: "Disk writes completed", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_network_receive_bytes_total", Help: "Network bytes received", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_network_transmit_bytes_total", Help: "Network bytes sent", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_network_receive_packets_total", Help: "Network packets received", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
		{Name: "node_network_transmit_packets_total", Help: "Network packets sent", Kind: registry.Counter, Labels: []string{"device"}, ReplacePerCycle: true},
	}
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	var (
		mu      sync.Mutex
		samples []registry.Sample
	)
	add := func(name string, value float64, labelValues ...string) {
		mu.Lock()
		samples = append(samples, registry.Sample{Name: name, LabelValues: labelValues, Value: value})
		mu.Unlock()
	}

	parts := []struct {
		name    string
		collect func(context.Context, func(string, float64, ...string)) error
	}{
		{"host", c.collectHost},
		{"cpu", c.collectCPU},
		{"memory", c.collectMemory},
		{"filesystem", c.collectFilesystem},
		{"diskio", c.collectDiskIO},
		{"network", c.collectNetwork},
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(parts))
	for _, part := range parts {
		wg.Add(1)
		go func(name string, collect func(context.Context, func(string, float64, ...string)) error) {
			defer wg.Done()
			if err := collect(ctx, add); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(part.name, part.collect)
	}
	wg.Wait()
	close(errCh)

	if err := common.HandleErrors(errCh); err != nil {
		return samples, fmt.Errorf("base collection: %w", err)
	}
	return samples, nil
}

func (c *Collector) collectHost(ctx context.Context, add func(string, float64, ...string)) error {
	if avg, err := load.AvgWithContext(ctx); err == nil {
		add("node_load1", avg.Load1)
		add("node_load5", avg.Load5)
		add("node_load15", avg.Load15)
	}

	bootTime, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return err
	}
	add("node_boot_time_seconds", float64(bootTime))

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return err
	}
	add("node_uptime_seconds", float64(uptime))
	return nil
}

func (c *Collector) collectCPU(ctx context.Context, add func(string, float64, ...string)) error {
	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return err
	}
	add("node_cpu_count", float64(count))

	percentages, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return err
	}
	for i, percentage := range percentages {
		add("node_cpu_usage_percent", percentage, fmt.Sprintf("cpu%d", i))
	}
	return nil
}

func (c *Collector) collectMemory(ctx context.Context, add func(string, float64, ...string)) error {
	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	add("node_memory_bytes", float64(vmStat.Total), "total")
	add("node_memory_bytes", float64(vmStat.Used), "used")
	add("node_memory_bytes", float64(vmStat.Free), "free")
	add("node_memory_bytes", float64(vmStat.Available), "available")
	add("node_memory_bytes", float64(vmStat.Cached), "cached")
	add("node_memory_bytes", float64(vmStat.Buffers), "buffers")

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	add("node_swap_bytes", float64(swap.Total), "total")
	add("node_swap_bytes", float64(swap.Used), "used")
	add("node_swap_bytes", float64(swap.Free), "free")
	return nil
}

func (c *Collector) collectFilesystem(ctx context.Context, add func(string, float64, ...string)) error {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return err
	}

	for _, partition := range partitions {
		if excludedFstypes[partition.Fstype] {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue
		}
		labels := []string{partition.Device, partition.Mountpoint, partition.Fstype}
		add("node_filesystem_size_bytes", float64(usage.Total), labels...)
		add("node_filesystem_free_bytes", float64(usage.Free), labels...)
	}
	return nil
}

func (c *Collector) collectDiskIO(ctx context.Context, add func(string, float64, ...string)) error {
	ioStats, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return err
	}

	for device, stats := range ioStats {
		if strings.HasPrefix(device, "loop") || strings.HasPrefix(device, "ram") {
			continue
		}
		add("node_disk_read_bytes_total", float64(stats.ReadBytes), device)
		add("node_disk_written_bytes_total", float64(stats.WriteBytes), device)
		add("node_disk_reads_completed_total", float64(stats.ReadCount), device)
		add("node_disk_writes_completed_total", float64(stats.WriteCount), device)
	}
	return nil
}

func (c *Collector) collectNetwork(ctx context.Context, add func(string, float64, ...string)) error {
	netStats, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return err
	}

	for _, stat := range netStats {
		if stat.Name == "lo" {
			continue
		}
		add("node_network_receive_bytes_total", float64(stat.BytesRecv), stat.Name)
		add("node_network_transmit_bytes_total", float64(stat.BytesSent), stat.Name)
		add("node_network_receive_packets_total", float64(stat.PacketsRecv), stat.Name)
		add("node_network_transmit_packets_total", float64(stat.PacketsSent), stat.Name)
	}
	return nil
}
