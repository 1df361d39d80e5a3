package state

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/encodeous/station/timetable"
)

type StationModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]StationModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	StationCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Started  atomic.Bool
	Stopping atomic.Bool
}

// RouterState is everything the query router reads or mutates while handling a message.
type RouterState struct {
	Name       string
	Addr       netip.AddrPort
	Neighbours []netip.AddrPort
	Timetable  *timetable.Snapshot
	Store      *CorrelationStore
	MaxHops    int
	Timeout    time.Duration
}

// OwnHop describes this station as a route hop, carrying its earliest trips from the given time.
func (rs *RouterState) OwnHop(id QueryID, after timetable.Clock) RouteHop {
	return RouteHop{
		Station: rs.Name,
		Query:   id,
		Addr:    rs.Addr,
		Trips:   rs.Timetable.EarliestTrips(after),
	}
}

// HopTimeout is the deadline for a station at the given route index. Deeper hops expire first so that
// their partial results reach the parent before the parent gives up. Adjacent depths are always at least
// HopTimeoutGap apart, even when the floor kicks in.
func (rs *RouterState) HopTimeout(depth int) time.Duration {
	hops := max(rs.MaxHops, 1)
	remaining := max(hops-depth, 1)
	floor := MinHopTimeout + HopTimeoutGap*time.Duration(remaining-1)
	return max(rs.Timeout*time.Duration(remaining)/time.Duration(hops), floor)
}
