package zfs

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

const arcstatsFixture = `13 1 0x01 123 33456 8154734529 1605350989384
name                            type data
hits                            4    9810925
misses                          4    224818
size                            4    4185802128
c                               4    8321499136
c_min                           4    520093696
c_max                           4    8321499136
arc_meta_used                   4    1250247152
`

func TestParseArcstats(t *testing.T) {
	samples := parseArcstats(arcstatsFixture)

	values := map[string]float64{}
	for _, s := range samples {
		values[s.Name] = s.Value
	}

	assert.Equal(t, float64(4185802128), values["node_zfs_arc_size_bytes"])
	assert.Equal(t, float64(8321499136), values["node_zfs_arc_target_bytes"])
	assert.Equal(t, float64(520093696), values["node_zfs_arc_min_bytes"])
	assert.Equal(t, float64(8321499136), values["node_zfs_arc_max_bytes"])
	assert.Equal(t, float64(9810925), values["node_zfs_arc_hits_total"])
	assert.Equal(t, float64(224818), values["node_zfs_arc_misses_total"])
	assert.NotContains(t, values, "arc_meta_used")
}

func TestParseZpoolList(t *testing.T) {
	out := "tank\t996432412672\t512345678\t995920067327\t4\tONLINE\n" +
		"backup\t1996488278016\t99648227328\t1896840050688\t12\tDEGRADED\n"

	samples, err := parseZpoolList(out)
	require.NoError(t, err)
	require.Len(t, samples, 10)

	byPool := map[string]map[string]float64{}
	for _, s := range samples {
		require.Len(t, s.LabelValues, 1)
		pool := s.LabelValues[0]
		if byPool[pool] == nil {
			byPool[pool] = map[string]float64{}
		}
		byPool[pool][s.Name] = s.Value
	}

	assert.Equal(t, float64(996432412672), byPool["tank"]["node_zfs_zpool_size_bytes"])
	assert.Equal(t, float64(512345678), byPool["tank"]["node_zfs_zpool_allocated_bytes"])
	assert.Equal(t, float64(995920067327), byPool["tank"]["node_zfs_zpool_free_bytes"])
	assert.Equal(t, float64(4), byPool["tank"]["node_zfs_zpool_fragmentation_percent"])
	assert.Equal(t, float64(0), byPool["tank"]["node_zfs_zpool_health"])
	assert.Equal(t, float64(1), byPool["backup"]["node_zfs_zpool_health"])
}

func TestParseZpoolList_MalformedLine(t *testing.T) {
	_, err := parseZpoolList("tank\t123\n")
	assert.Error(t, err)
}

func TestHealthCode(t *testing.T) {
	assert.Equal(t, float64(0), healthCode("ONLINE"))
	assert.Equal(t, float64(1), healthCode("degraded"))
	assert.Equal(t, float64(2), healthCode("FAULTED"))
	assert.Equal(t, float64(3), healthCode("UNAVAIL"))
	assert.Equal(t, float64(3), healthCode("OFFLINE"))
}

func TestCollect_ArcstatsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arcstats")
	require.NoError(t, os.WriteFile(path, []byte(arcstatsFixture), 0o644))

	c := New(zerolog.Nop())
	c.arcstatsPath = path
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("zpool not found")
	}

	samples, err := c.Collect(context.Background())
	assert.Error(t, err)
	assert.NotEmpty(t, samples, "ARC samples survive a zpool failure")
}

func TestCollect_MatchesSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arcstats")
	require.NoError(t, os.WriteFile(path, []byte(arcstatsFixture), 0o644))

	c := New(zerolog.Nop())
	c.arcstatsPath = path
	c.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "tank\t996432412672\t512345678\t995920067327\t4\tONLINE\n", nil
	}

	reg := registry.New()
	for _, d := range c.Describe() {
		require.NoError(t, reg.Register(c.Name(), d))
	}

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NoError(t, reg.Apply(c.Name(), samples))
}
