package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
name: JunctionB
client_bind: 127.0.0.1:4003
station_bind: 127.0.0.1:4004
neighbours:
  - 127.0.0.1:4002
  - 127.0.0.1:4006
timetable: ./tt-JunctionB
query_timeout_ms: 2000
`

func TestStationConfigYaml(t *testing.T) {
	var cfg StationCfg
	require.NoError(t, yaml.Unmarshal([]byte(sampleConfig), &cfg))
	ExpandStationConfig(&cfg)

	assert.Equal(t, "JunctionB", cfg.Name)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:4003"), cfg.ClientBind)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:4004"), cfg.AdvertiseAddr())
	assert.Len(t, cfg.Neighbours, 2)
	assert.Equal(t, 2000, cfg.QueryTimeoutMs)
	assert.Equal(t, DefaultMaxHops, cfg.MaxHops)
	assert.Equal(t, TimetableReloadDelay, cfg.ReloadInterval())
}

func TestHopTimeoutShrinksWithDepth(t *testing.T) {
	rs := &RouterState{MaxHops: 16, Timeout: DefaultQueryTimeout}
	assert.Equal(t, DefaultQueryTimeout, rs.HopTimeout(0))
	prev := rs.HopTimeout(0)
	for depth := 1; depth < rs.MaxHops; depth++ {
		cur := rs.HopTimeout(depth)
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, MinHopTimeout)
		prev = cur
	}
	assert.Equal(t, rs.HopTimeout(rs.MaxHops-1), rs.HopTimeout(100))

	rs.Timeout = time.Second
	assert.Equal(t, MinHopTimeout, rs.HopTimeout(15))
}

func TestHopTimeoutKeepsGap(t *testing.T) {
	for _, timeout := range []time.Duration{time.Millisecond * 300, time.Second, DefaultQueryTimeout} {
		rs := &RouterState{MaxHops: DefaultMaxHops, Timeout: timeout}
		for depth := 1; depth < rs.MaxHops; depth++ {
			assert.GreaterOrEqual(t, rs.HopTimeout(depth-1)-rs.HopTimeout(depth), HopTimeoutGap,
				"timeout %s depth %d", timeout, depth)
		}
		assert.GreaterOrEqual(t, rs.HopTimeout(rs.MaxHops-1), MinHopTimeout)
	}
}
