package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxmox-adaptive-exporter/internal/registry"
)

const qmListFixture = `      VMID NAME                 STATUS     MEM(MB)    BOOTDISK(GB) PID
       100 pfsense              running    4096              32.00 1234
       102 win11                stopped    8192             120.00 0
       110 k8s-node-1           running    16384             64.00 5678
`

const pctListFixture = `VMID       Status     Lock         Name
101        running                 web01
103        stopped                 backup-ct
105        running    backup       db01
`

func fixedRun(out string) func(ctx context.Context, name string, args ...string) (string, error) {
	return func(ctx context.Context, name string, args ...string) (string, error) {
		return out, nil
	}
}

func TestQemuCollect(t *testing.T) {
	c := NewQemu(zerolog.Nop())
	c.run = fixedRun(qmListFixture)

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	status := map[string]float64{}
	counts := map[string]float64{}
	for _, s := range samples {
		switch s.Name {
		case "node_vm_status":
			require.Len(t, s.LabelValues, 3)
			assert.Equal(t, "qemu", s.LabelValues[2])
			status[s.LabelValues[0]+"/"+s.LabelValues[1]] = s.Value
		case "node_vm_count":
			counts[s.LabelValues[1]] = s.Value
		}
	}

	assert.Equal(t, map[string]float64{
		"100/pfsense":    1,
		"102/win11":      0,
		"110/k8s-node-1": 1,
	}, status)
	assert.Equal(t, float64(2), counts["running"])
	assert.Equal(t, float64(1), counts["stopped"])
}

func TestLXCCollect(t *testing.T) {
	c := NewLXC(zerolog.Nop())
	c.run = fixedRun(pctListFixture)

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	status := map[string]float64{}
	for _, s := range samples {
		if s.Name != "node_vm_status" {
			continue
		}
		assert.Equal(t, "lxc", s.LabelValues[2])
		status[s.LabelValues[0]+"/"+s.LabelValues[1]] = s.Value
	}

	// The locked container still parses: name is the last column.
	assert.Equal(t, map[string]float64{
		"101/web01":     1,
		"103/backup-ct": 0,
		"105/db01":      1,
	}, status)
}

func TestCollect_CommandError(t *testing.T) {
	c := NewQemu(zerolog.Nop())
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("qm: command not found")
	}

	samples, err := c.Collect(context.Background())
	assert.Error(t, err)
	assert.Nil(t, samples)
}

func TestCollect_MalformedOutput(t *testing.T) {
	c := NewQemu(zerolog.Nop())
	c.run = fixedRun("garbage output here\n")

	_, err := c.Collect(context.Background())
	assert.Error(t, err)
}

func TestQemuAndLXCShareSchema(t *testing.T) {
	reg := registry.New()
	qemu := NewQemu(zerolog.Nop())
	lxc := NewLXC(zerolog.Nop())

	for _, d := range qemu.Describe() {
		require.NoError(t, reg.Register(qemu.Name(), d))
	}
	for _, d := range lxc.Describe() {
		require.NoError(t, reg.Register(lxc.Name(), d))
	}

	qemu.run = fixedRun(qmListFixture)
	lxc.run = fixedRun(pctListFixture)

	qs, err := qemu.Collect(context.Background())
	require.NoError(t, err)
	require.NoError(t, reg.Apply(qemu.Name(), qs))

	ls, err := lxc.Collect(context.Background())
	require.NoError(t, err)
	require.NoError(t, reg.Apply(lxc.Name(), ls))

	reg.Publish()
	snap := reg.Snapshot()
	require.NotNil(t, snap)

	var qemuSeries, lxcSeries int
	for _, series := range snap {
		if series.Name != "node_vm_status" {
			continue
		}
		switch series.LabelValues[2] {
		case "qemu":
			qemuSeries++
		case "lxc":
			lxcSeries++
		}
	}
	assert.Equal(t, 3, qemuSeries)
	assert.Equal(t, 3, lxcSeries)
}
