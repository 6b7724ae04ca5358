// Package vm reports Proxmox guest inventory, covering QEMU virtual
// machines via qm and LXC containers via pct.
package vm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/modules/common"
	"proxmox-adaptive-exporter/internal/registry"
)

type guest struct {
	vmid   string
	name   string
	status string
}

type Collector struct {
	logger   zerolog.Logger
	kind     string
	requires features.Capability
	run      func(ctx context.Context, name string, args ...string) (string, error)
	list     func(ctx context.Context, c *Collector) ([]guest, error)
}

func NewQemu(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:   logger.With().Str("collector", "vm_qemu").Logger(),
		kind:     "qemu",
		requires: features.VMQemu,
		run:      common.RunCommand,
		list:     listQemu,
	}
}

func NewLXC(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:   logger.With().Str("collector", "vm_lxc").Logger(),
		kind:     "lxc",
		requires: features.VMLXC,
		run:      common.RunCommand,
		list:     listLXC,
	}
}

func (c *Collector) Name() string {
	return "vm_" + c.kind
}

func (c *Collector) Requires() features.Capability {
	return c.requires
}

func (c *Collector) Describe() []registry.Desc {
	return []registry.Desc{
		{
			Name:            "node_vm_status",
			Help:            "Guest status (1=running, 0=stopped)",
			Kind:            registry.Gauge,
			Labels:          []string{"vmid", "name", "type"},
			ReplacePerCycle: true,
		},
		{
			Name:            "node_vm_count",
			Help:            "Number of guests by status",
			Kind:            registry.Gauge,
			Labels:          []string{"type", "status"},
			ReplacePerCycle: true,
		},
	}
}

func (c *Collector) Collect(ctx context.Context) ([]registry.Sample, error) {
	guests, err := c.list(ctx, c)
	if err != nil {
		return nil, err
	}

	var samples []registry.Sample
	counts := map[string]int{}
	for _, g := range guests {
		up := 0.0
		if g.status == "running" {
			up = 1.0
		}
		samples = append(samples, registry.Sample{
			Name:        "node_vm_status",
			LabelValues: []string{g.vmid, g.name, c.kind},
			Value:       up,
		})
		counts[g.status]++
	}
	for status, n := range counts {
		samples = append(samples, registry.Sample{
			Name:        "node_vm_count",
			LabelValues: []string{c.kind, status},
			Value:       float64(n),
		})
	}
	return samples, nil
}

// listQemu parses qm list output:
//
//	VMID NAME                 STATUS     MEM(MB)    BOOTDISK(GB) PID
//	 100 pfsense              running    4096              32.00 1234
func listQemu(ctx context.Context, c *Collector) ([]guest, error) {
	out, err := c.run(ctx, "qm", "list")
	if err != nil {
		return nil, err
	}

	var guests []guest
	for _, line := range strings.Split(out, "\n") {
		fields := common.Fields(line)
		if len(fields) < 3 || fields[0] == "VMID" {
			continue
		}
		if !isNumeric(fields[0]) {
			return nil, fmt.Errorf("unexpected qm list line %q", line)
		}
		guests = append(guests, guest{vmid: fields[0], name: fields[1], status: fields[2]})
	}
	return guests, nil
}

// listLXC parses pct list output, where the Lock column may be empty:
//
//	VMID       Status     Lock         Name
//	101        running                 web01
func listLXC(ctx context.Context, c *Collector) ([]guest, error) {
	out, err := c.run(ctx, "pct", "list")
	if err != nil {
		return nil, err
	}

	var guests []guest
	for _, line := range strings.Split(out, "\n") {
		fields := common.Fields(line)
		if len(fields) < 3 || fields[0] == "VMID" {
			continue
		}
		if !isNumeric(fields[0]) {
			return nil, fmt.Errorf("unexpected pct list line %q", line)
		}
		guests = append(guests, guest{vmid: fields[0], name: fields[len(fields)-1], status: fields[1]})
	}
	return guests, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
