package base

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxmox-adaptive-exporter/internal/registry"
)

func TestCollector_Identity(t *testing.T) {
	c := New(zerolog.Nop())
	assert.Equal(t, "base", c.Name())
	assert.Empty(t, string(c.Requires()), "base collector must not be capability-gated")
}

func TestDescribe_RegistersCleanly(t *testing.T) {
	c := New(zerolog.Nop())
	reg := registry.New()

	descs := c.Describe()
	require.NotEmpty(t, descs)
	seen := map[string]bool{}
	for _, d := range descs {
		assert.False(t, seen[d.Name], "duplicate instrument %s", d.Name)
		seen[d.Name] = true
		require.NoError(t, reg.Register(c.Name(), d))
	}
}

func TestCollect_ProducesCoreSamples(t *testing.T) {
	c := New(zerolog.Nop())

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, samples)

	byName := map[string][]registry.Sample{}
	for _, s := range samples {
		byName[s.Name] = append(byName[s.Name], s)
	}

	require.Len(t, byName["node_uptime_seconds"], 1)
	assert.Greater(t, byName["node_uptime_seconds"][0].Value, 0.0)
	require.Len(t, byName["node_cpu_count"], 1)
	assert.GreaterOrEqual(t, byName["node_cpu_count"][0].Value, 1.0)

	memTotal := 0.0
	for _, s := range byName["node_memory_bytes"] {
		if len(s.LabelValues) == 1 && s.LabelValues[0] == "total" {
			memTotal = s.Value
		}
	}
	assert.Greater(t, memTotal, 0.0)
}

func TestCollect_SamplesMatchSchema(t *testing.T) {
	c := New(zerolog.Nop())
	reg := registry.New()
	for _, d := range c.Describe() {
		require.NoError(t, reg.Register(c.Name(), d))
	}

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.NoError(t, reg.Apply(c.Name(), samples), "every emitted sample must match a declared instrument")
}
