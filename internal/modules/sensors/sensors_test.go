package sensors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxmox-adaptive-exporter/internal/registry"
)

func writeFixture(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testCollector(t *testing.T, files map[string]string) *Collector {
	c := New(zerolog.Nop())
	c.root = t.TempDir()
	writeFixture(t, c.root, files)
	return c
}

func findSample(samples []registry.Sample, name, chip, sensor string) (float64, bool) {
	for _, s := range samples {
		if s.Name == name && s.LabelValues[0] == chip && s.LabelValues[1] == sensor {
			return s.Value, true
		}
	}
	return 0, false
}

func TestCollect_ReadsHwmonTree(t *testing.T) {
	c := testCollector(t, map[string]string{
		"hwmon0/name":        "coretemp\n",
		"hwmon0/temp1_input": "45000\n",
		"hwmon0/temp1_label": "Core 0\n",
		"hwmon0/temp2_input": "52000\n",
		"hwmon1/name":        "nct6775\n",
		"hwmon1/fan1_input":  "1200\n",
		"hwmon1/in0_input":   "3300\n",
		"hwmon1/power1_input": "25000000\n",
		"hwmon1/curr1_input": "1500\n",
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	v, ok := findSample(samples, "node_hwmon_temp_celsius", "coretemp", "Core_0")
	require.True(t, ok, "labeled temp sensor missing")
	assert.Equal(t, 45.0, v)

	v, ok = findSample(samples, "node_hwmon_temp_celsius", "coretemp", "temp2")
	require.True(t, ok, "unlabeled sensor should use its file id")
	assert.Equal(t, 52.0, v)

	v, _ = findSample(samples, "node_hwmon_fan_rpm", "nct6775", "fan1")
	assert.Equal(t, 1200.0, v)
	v, _ = findSample(samples, "node_hwmon_voltage_volts", "nct6775", "in0")
	assert.Equal(t, 3.3, v)
	v, _ = findSample(samples, "node_hwmon_power_watts", "nct6775", "power1")
	assert.Equal(t, 25.0, v)
	v, _ = findSample(samples, "node_hwmon_current_amps", "nct6775", "curr1")
	assert.Equal(t, 1.5, v)
}

func TestCollect_SkipsChipsWithoutName(t *testing.T) {
	c := testCollector(t, map[string]string{
		"hwmon0/temp1_input": "45000\n",
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestCollect_SkipsUnparseableReadings(t *testing.T) {
	c := testCollector(t, map[string]string{
		"hwmon0/name":        "coretemp\n",
		"hwmon0/temp1_input": "garbage\n",
		"hwmon0/temp2_input": "40000\n",
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 40.0, samples[0].Value)
}

func TestCollect_MissingRootIsError(t *testing.T) {
	c := New(zerolog.Nop())
	c.root = filepath.Join(t.TempDir(), "missing")

	_, err := c.Collect(context.Background())
	assert.Error(t, err)
}

func TestCollect_SamplesMatchSchema(t *testing.T) {
	c := testCollector(t, map[string]string{
		"hwmon0/name":        "coretemp\n",
		"hwmon0/temp1_input": "41000\n",
	})
	reg := registry.New()
	for _, d := range c.Describe() {
		require.NoError(t, reg.Register(c.Name(), d))
	}

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.NoError(t, reg.Apply(c.Name(), samples))
}
