package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/encodeous/station/timetable"
	"github.com/google/uuid"
)

// QueryID identifies a client query across every station it visits.
type QueryID = uuid.UUID

func NewQueryID() QueryID {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New()
	}
	return id
}

type TripType uint8

const (
	FastestTrip TripType = iota
)

var tripTypeNames = map[TripType]string{
	FastestTrip: "FastestTrip",
}

func ParseTripType(s string) (TripType, error) {
	for tt, name := range tripTypeNames {
		if strings.EqualFold(s, name) {
			return tt, nil
		}
	}
	if strings.EqualFold(s, "fastest") {
		return FastestTrip, nil
	}
	return 0, fmt.Errorf("unknown trip type %q", s)
}

func (t TripType) Valid() bool {
	_, ok := tripTypeNames[t]
	return ok
}

func (t TripType) String() string {
	if name, ok := tripTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TripType(%d)", uint8(t))
}

func (t TripType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TripType) UnmarshalText(b []byte) error {
	v, err := ParseTripType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RouteHop is one station on a route, with the trips it offered when the query passed through.
type RouteHop struct {
	Station string           `validate:"required"`
	Query   QueryID          `validate:"-"`
	Addr    netip.AddrPort   `validate:"-"`
	Trips   []timetable.Trip `validate:"dive"`
}

func (h RouteHop) TripsTo(station string) []timetable.Trip {
	return timetable.TripsTo(h.Trips, station)
}

type Query struct {
	ID            QueryID `validate:"-"`
	Source        string  `validate:"required"`
	Destination   string  `validate:"required"`
	TripType      TripType
	RequestedTime timetable.Clock `validate:"gte=0,lte=1439"`
	RouteEndFound bool
	Route         []RouteHop `validate:"required,min=1,dive"`
}

func (q Query) Last() RouteHop {
	return q.Route[len(q.Route)-1]
}

// Visited reports whether a station listening on addr is already on the route.
func (q Query) Visited(addr netip.AddrPort) bool {
	addr = NormalizeAddr(addr)
	return slices.ContainsFunc(q.Route, func(h RouteHop) bool {
		return NormalizeAddr(h.Addr) == addr
	})
}

func (q Query) VisitedStation(name string) bool {
	return slices.ContainsFunc(q.Route, func(h RouteHop) bool {
		return h.Station == name
	})
}

// WithHop returns a copy of the query with hop appended. The receiver's route is left untouched.
func (q Query) WithHop(hop RouteHop) Query {
	route := make([]RouteHop, len(q.Route), len(q.Route)+1)
	copy(route, q.Route)
	q.Route = append(route, hop)
	return q
}

// Truncate returns a copy of the query keeping only the first n hops.
func (q Query) Truncate(n int) Query {
	n = min(max(n, 0), len(q.Route))
	q.Route = slices.Clone(q.Route[:n])
	return q
}

// Arrival is the earliest arrival at the destination offered by the last hop of the route.
func (q Query) Arrival() (timetable.Clock, bool) {
	if len(q.Route) == 0 {
		return 0, false
	}
	trips := q.Last().TripsTo(q.Destination)
	if len(trips) == 0 {
		return 0, false
	}
	best := trips[0].Arrival
	for _, t := range trips[1:] {
		best = min(best, t.Arrival)
	}
	return best, true
}

func (q Query) String() string {
	names := make([]string, 0, len(q.Route))
	for _, h := range q.Route {
		names = append(names, h.Station)
	}
	return fmt.Sprintf("%s %s->%s via [%s]", q.ID, q.Source, q.Destination, strings.Join(names, " "))
}

// Message is a query travelling between stations.
type Message interface {
	Inner() Query
	isMessage()
}

// OutgoingQuery travels away from the origin. The sender is always the last hop of the route.
type OutgoingQuery struct {
	Query
}

// IncomingQuery travels back towards the origin. Cursor is the route index of the station it is addressed to.
type IncomingQuery struct {
	Query
	Cursor int
}

func (o OutgoingQuery) Inner() Query { return o.Query }
func (i IncomingQuery) Inner() Query { return i.Query }
func (OutgoingQuery) isMessage()     {}
func (IncomingQuery) isMessage()     {}

// HopKey correlates forwards made by a station for one query reaching it along one path.
type HopKey struct {
	Query QueryID
	Path  string
}

// KeyOf derives the correlation key of the station at route index idx.
func KeyOf(q Query, idx int) HopKey {
	names := make([]string, 0, idx+1)
	for _, h := range q.Route[:idx+1] {
		names = append(names, h.Station)
	}
	return HopKey{Query: q.ID, Path: strings.Join(names, "/")}
}

func (k HopKey) String() string {
	return k.Query.String() + "@" + k.Path
}

func NormalizeAddr(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

type Format uint8

const (
	FormatHTML Format = iota
	FormatJSON
)

// ClientRequest is a validated journey request from a client.
type ClientRequest struct {
	Destination string
	Time        timetable.Clock
	TripType    TripType
	Format      Format
	Remote      string
}

// ClientWaiter is a client connection waiting on the outcome of its query.
type ClientWaiter struct {
	Query   QueryID
	Request ClientRequest
	Respond func(Result)
}

type Leg struct {
	Station string         `json:"station"`
	Trip    timetable.Trip `json:"trip"`
}

// Result is the outcome of a query as presented to the client.
type Result struct {
	Query         QueryID         `json:"query"`
	Source        string          `json:"source"`
	Destination   string          `json:"destination"`
	RequestedTime timetable.Clock `json:"requested_time"`
	TripType      TripType        `json:"trip_type"`
	RouteEndFound bool            `json:"route_end_found"`
	Legs          []Leg           `json:"legs,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

func (r Result) Found() bool {
	return !r.RouteEndFound && len(r.Legs) > 0
}

func (r Result) Arrival() (timetable.Clock, bool) {
	if !r.Found() {
		return 0, false
	}
	return r.Legs[len(r.Legs)-1].Trip.Arrival, true
}

type QueryPhase uint8

const (
	Resolved QueryPhase = iota
	RootPending
	ForwardPending
)

func (p QueryPhase) String() string {
	switch p {
	case RootPending:
		return "RootPending"
	case ForwardPending:
		return "ForwardPending"
	default:
		return "Resolved"
	}
}
