package state

import (
	"net/netip"
	"time"
)

// StationCfg is the configuration of a single station process
type StationCfg struct {
	Name        string           `yaml:"name" validate:"required,max=100"`
	ClientBind  netip.AddrPort   `yaml:"client_bind"`            // tcp address clients connect to
	StationBind netip.AddrPort   `yaml:"station_bind"`           // udp address shared by every neighbour
	Advertise   netip.AddrPort   `yaml:"advertise,omitempty"`    // address neighbours reply to, defaults to station_bind
	Neighbours  []netip.AddrPort `yaml:"neighbours,omitempty"`   // udp addresses of adjacent stations
	Timetable   string           `yaml:"timetable" validate:"required"`
	MaxHops     int              `yaml:"max_hops,omitempty" validate:"gte=0,lte=255"`
	// query deadline at the origin, deeper hops get a proportionally shorter deadline
	QueryTimeoutMs   int    `yaml:"query_timeout_ms,omitempty" validate:"gte=0"`
	ReloadIntervalMs int    `yaml:"reload_interval_ms,omitempty" validate:"gte=0"`
	MaxClients       int    `yaml:"max_clients,omitempty" validate:"gte=0"`
	LogPath          string `yaml:"log_path,omitempty"`   // if not empty, the station will also write to this file
	DebugBind        string `yaml:"debug_bind,omitempty" validate:"omitempty,hostname_port"`
}

func (c *StationCfg) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

func (c *StationCfg) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalMs) * time.Millisecond
}

// AdvertiseAddr is the address other stations see this station as.
func (c *StationCfg) AdvertiseAddr() netip.AddrPort {
	if c.Advertise.IsValid() {
		return NormalizeAddr(c.Advertise)
	}
	return NormalizeAddr(c.StationBind)
}

func ExpandStationConfig(cfg *StationCfg) {
	if cfg.MaxHops == 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.QueryTimeoutMs == 0 {
		cfg.QueryTimeoutMs = int(DefaultQueryTimeout / time.Millisecond)
	}
	if cfg.ReloadIntervalMs == 0 {
		cfg.ReloadIntervalMs = int(TimetableReloadDelay / time.Millisecond)
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	for i, n := range cfg.Neighbours {
		cfg.Neighbours[i] = NormalizeAddr(n)
	}
}
