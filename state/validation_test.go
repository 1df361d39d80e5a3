package state

import (
	"net/netip"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("BusportA"))
	assert.NoError(t, NameValidator("warwick-stn.2"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("station name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("a/b"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func validCfg(t *testing.T) StationCfg {
	cfg := StationCfg{
		Name:        "BusportA",
		ClientBind:  netip.MustParseAddrPort("127.0.0.1:4001"),
		StationBind: netip.MustParseAddrPort("127.0.0.1:4002"),
		Neighbours: []netip.AddrPort{
			netip.MustParseAddrPort("127.0.0.1:4004"),
			netip.MustParseAddrPort("127.0.0.1:4006"),
		},
		Timetable: filepath.Join(t.TempDir(), "tt-BusportA"),
	}
	ExpandStationConfig(&cfg)
	return cfg
}

func TestStationConfigValidator_Valid(t *testing.T) {
	cfg := validCfg(t)
	assert.NoError(t, StationConfigValidator(&cfg))
	assert.Equal(t, DefaultMaxHops, cfg.MaxHops)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout())
}

func TestStationConfigValidator_SelfNeighbour(t *testing.T) {
	cfg := validCfg(t)
	cfg.Neighbours = append(cfg.Neighbours, cfg.StationBind)
	assert.ErrorContains(t, StationConfigValidator(&cfg), "itself")
}

func TestStationConfigValidator_DuplicateNeighbour(t *testing.T) {
	cfg := validCfg(t)
	cfg.Neighbours = append(cfg.Neighbours, cfg.Neighbours[0])
	assert.ErrorContains(t, StationConfigValidator(&cfg), "duplicate")
}

func TestStationConfigValidator_Unspecified(t *testing.T) {
	cfg := validCfg(t)
	cfg.StationBind = netip.MustParseAddrPort("0.0.0.0:4002")
	assert.Error(t, StationConfigValidator(&cfg))

	cfg.Advertise = netip.MustParseAddrPort("10.0.0.4:4002")
	assert.NoError(t, StationConfigValidator(&cfg))
	assert.Equal(t, cfg.Advertise, cfg.AdvertiseAddr())
}

func TestStationConfigValidator_Tags(t *testing.T) {
	cfg := validCfg(t)
	cfg.MaxHops = 1000
	assert.Error(t, StationConfigValidator(&cfg))

	cfg = validCfg(t)
	cfg.DebugBind = "not a bind"
	assert.Error(t, StationConfigValidator(&cfg))

	cfg = validCfg(t)
	cfg.Timetable = ""
	assert.Error(t, StationConfigValidator(&cfg))
}

func TestBindValidator(t *testing.T) {
	assert.NoError(t, BindValidator("127.0.0.1:4001"))
	assert.NoError(t, BindValidator("[::1]:4001"))
	assert.Error(t, BindValidator("localhost"))
}
