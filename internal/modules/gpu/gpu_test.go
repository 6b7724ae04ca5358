package gpu

import (
	"context"
	"errors"
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

func sampleValue(t *testing.T, samples []registry.Sample, name string) float64 {
	t.Helper()
	for _, s := range samples {
		if s.Name == name {
			return s.Value
		}
	}
	t.Fatalf("sample %s not found", name)
	return 0
}

func TestParseNvidiaSMI(t *testing.T) {
	out := "0, NVIDIA GeForce RTX 3080, 62, 45, 10240, 3100, 215.50\n" +
		"1, NVIDIA A2000, 41, 0, 6144, 120, [N/A]\n"

	samples, err := parseNvidiaSMI(out)
	require.NoError(t, err)

	byGPU := map[string]map[string]float64{}
	for _, s := range samples {
		gpu := s.LabelValues[0]
		if byGPU[gpu] == nil {
			byGPU[gpu] = map[string]float64{}
		}
		byGPU[gpu][s.Name] = s.Value
		assert.Equal(t, 3, len(s.LabelValues))
	}

	assert.Equal(t, 62.0, byGPU["0"]["node_gpu_temp_celsius"])
	assert.Equal(t, 45.0, byGPU["0"]["node_gpu_utilization_percent"])
	assert.Equal(t, 10240*1024*1024.0, byGPU["0"]["node_gpu_memory_total_bytes"])
	assert.Equal(t, 215.5, byGPU["0"]["node_gpu_power_draw_watts"])

	// Power on GPU 1 is [N/A] and must be absent, not zero.
	_, hasPower := byGPU["1"]["node_gpu_power_draw_watts"]
	assert.False(t, hasPower)
	assert.Equal(t, 41.0, byGPU["1"]["node_gpu_temp_celsius"])
}

func TestParseNvidiaSMI_MalformedLine(t *testing.T) {
	_, err := parseNvidiaSMI("not,enough,fields")
	assert.Error(t, err)
}

func TestNvidia_CollectPropagatesCommandError(t *testing.T) {
	c := NewNvidia(zerolog.Nop())
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("nvidia-smi crashed")
	}

	_, err := c.Collect(context.Background())
	assert.Error(t, err)
}

func TestAMD_CollectFromSysfs(t *testing.T) {
	c := NewAMD(zerolog.Nop())
	c.root = t.TempDir()
	writeFixture(t, c.root, map[string]string{
		"card0/device/vendor":              "0x1002\n",
		"card0/device/gpu_busy_percent":    "37\n",
		"card0/device/mem_info_vram_total": "17163091968\n",
		"card0/device/mem_info_vram_used":  "524288000\n",
		"card0/device/hwmon/hwmon2/temp1_input":    "64000\n",
		"card0/device/hwmon/hwmon2/power1_average": "183000000\n",
		// Non-AMD card must be ignored.
		"card1/device/vendor":           "0x10de\n",
		"card1/device/gpu_busy_percent": "99\n",
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 5)

	assert.Equal(t, 37.0, sampleValue(t, samples, "node_gpu_utilization_percent"))
	assert.Equal(t, 17163091968.0, sampleValue(t, samples, "node_gpu_memory_total_bytes"))
	assert.Equal(t, 64.0, sampleValue(t, samples, "node_gpu_temp_celsius"))
	assert.Equal(t, 183.0, sampleValue(t, samples, "node_gpu_power_draw_watts"))
	for _, s := range samples {
		assert.Equal(t, []string{"0", "amdgpu", "amd"}, s.LabelValues)
	}
}

func TestIntel_CollectFromSysfs(t *testing.T) {
	c := NewIntel(zerolog.Nop())
	c.root = t.TempDir()
	writeFixture(t, c.root, map[string]string{
		"card0/device/vendor":  "0x8086\n",
		"card0/gt_cur_freq_mhz": "1100\n",
	})

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "node_gpu_clock_hertz", samples[0].Name)
	assert.Equal(t, 1100*1_000_000.0, samples[0].Value)
	assert.Equal(t, []string{"0", "i915", "intel"}, samples[0].LabelValues)
}

func TestVendors_ShareOneSchema(t *testing.T) {
	reg := registry.New()
	nvidia := NewNvidia(zerolog.Nop())
	amd := NewAMD(zerolog.Nop())
	intel := NewIntel(zerolog.Nop())

	for _, d := range nvidia.Describe() {
		require.NoError(t, reg.Register(nvidia.Name(), d))
	}
	for _, d := range amd.Describe() {
		require.NoError(t, reg.Register(amd.Name(), d))
	}
	for _, d := range intel.Describe() {
		require.NoError(t, reg.Register(intel.Name(), d))
	}
}
