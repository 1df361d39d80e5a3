package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
)

type RouterEvent int

// trace events

const (
	QueryStarted RouterEvent = iota
	LocalMatch
	QueryForwarded
	DestinationFound
	DeadEnd
	ReplyBanked
	HopSettled
	QueryDelivered
	HopExpired
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	CorrelationMiss
	SendFailed
)

func (e RouterEvent) String() string {
	switch e {
	case QueryStarted:
		return "QueryStarted"
	case LocalMatch:
		return "LocalMatch"
	case QueryForwarded:
		return "QueryForwarded"
	case DestinationFound:
		return "DestinationFound"
	case DeadEnd:
		return "DeadEnd"
	case ReplyBanked:
		return "ReplyBanked"
	case HopSettled:
		return "HopSettled"
	case QueryDelivered:
		return "QueryDelivered"
	case HopExpired:
		return "HopExpired"
	case InconsistentState:
		return "InconsistentState"
	case CorrelationMiss:
		return "CorrelationMiss"
	case SendFailed:
		return "SendFailed"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

func (e RouterEvent) IsWarning() bool {
	return e >= InconsistentState
}

// Router is an interface that defines the side effects of the query router
type Router interface {
	// SendQuery sends a message to another station. Errors for which state.IsFatal holds stop the station.
	SendQuery(to netip.AddrPort, msg state.Message) error
	// Deliver hands a final result to a waiting client.
	Deliver(w state.ClientWaiter, res state.Result)
	ArmDeadline(key state.HopKey, depth int)
	DisarmDeadline(key state.HopKey)
	Log(event RouterEvent, desc string, args ...any)
}

// Dead end reasons carried into client results.
const (
	ReasonNoRoute     = "no route found"
	ReasonUnreachable = "destination not reachable from this station"
	ReasonTimeout     = "query timed out before every station replied"
	ReasonRejected    = "query id already in use"
)

// HandleClientRequest starts a query on behalf of a client. The waiter is resolved exactly once,
// either immediately or when every forward of the root hop has been accounted for.
func HandleClientRequest(rs *state.RouterState, r Router, w state.ClientWaiter) error {
	req := w.Request
	q := state.Query{
		ID:            w.Query,
		Source:        rs.Name,
		Destination:   req.Destination,
		TripType:      req.TripType,
		RequestedTime: req.Time,
		Route:         []state.RouteHop{rs.OwnHop(w.Query, req.Time)},
	}
	if err := rs.Store.RegisterWaiter(w); err != nil {
		r.Log(InconsistentState, "client query id collision", "query", w.Query, "error", err)
		r.Deliver(w, state.Result{
			Query:         q.ID,
			Source:        q.Source,
			Destination:   q.Destination,
			RequestedTime: q.RequestedTime,
			TripType:      q.TripType,
			Reason:        ReasonRejected,
		})
		return nil
	}
	r.Log(QueryStarted, q.String(), "time", req.Time, "type", req.TripType)

	if direct := q.Route[0].TripsTo(q.Destination); len(direct) > 0 {
		q.Route[0].Trips = direct
		r.Log(LocalMatch, q.String())
		return resolveRoot(rs, r, q)
	}

	key := state.KeyOf(q, 0)
	sent, err := flood(rs, r, q, key, netip.AddrPort{})
	if err != nil {
		return err
	}
	if sent == 0 {
		q.RouteEndFound = true
		return resolveRoot(rs, r, q)
	}
	r.ArmDeadline(key, 0)
	return nil
}

// HandleQuery processes a message received from another station.
func HandleQuery(rs *state.RouterState, r Router, from netip.AddrPort, msg state.Message) error {
	switch m := msg.(type) {
	case state.OutgoingQuery:
		return handleOutgoing(rs, r, from, m.Query)
	case state.IncomingQuery:
		return handleIncoming(rs, r, from, m)
	}
	r.Log(InconsistentState, "unknown message", "type", fmt.Sprintf("%T", msg))
	return nil
}

func handleOutgoing(rs *state.RouterState, r Router, from netip.AddrPort, q state.Query) error {
	prev := q.Last()
	if rs.Store.IsOpen(state.KeyOf(q.WithHop(state.RouteHop{Station: rs.Name}), len(q.Route))) {
		r.Log(CorrelationMiss, "duplicate outgoing query", "query", q.ID, "from", from)
		return nil
	}
	if state.NormalizeAddr(from) != prev.Addr {
		r.Log(InconsistentState, "outgoing query not sent by its last hop", "query", q.ID, "from", from, "last", prev.Addr)
	}
	if q.Destination == rs.Name {
		// the previous station would have matched us directly had it been possible
		return replyDeadEnd(r, q, len(q.Route)-1, "reached destination without a leg")
	}
	if q.VisitedStation(rs.Name) || q.Visited(rs.Addr) {
		return replyDeadEnd(r, q, len(q.Route)-1, "cycle")
	}
	legs := prev.TripsTo(rs.Name)
	if len(legs) == 0 {
		return replyDeadEnd(r, q, len(q.Route)-1, "no leg from "+prev.Station)
	}
	arrival := legs[0].Arrival
	for _, l := range legs[1:] {
		arrival = min(arrival, l.Arrival)
	}

	q = q.WithHop(rs.OwnHop(q.ID, arrival))
	idx := len(q.Route) - 1

	if direct := q.Route[idx].TripsTo(q.Destination); len(direct) > 0 {
		q.Route[idx].Trips = direct
		r.Log(DestinationFound, q.String())
		return sendIncoming(r, state.IncomingQuery{Query: q, Cursor: idx - 1})
	}
	if len(q.Route) >= rs.MaxHops {
		return replyDeadEnd(r, q, idx-1, "hop limit")
	}
	if !hasContinuation(q, q.Route[idx]) {
		return replyDeadEnd(r, q, idx-1, "no onward trips")
	}

	key := state.KeyOf(q, idx)
	sent, err := flood(rs, r, q, key, prev.Addr)
	if err != nil {
		return err
	}
	if sent == 0 {
		return replyDeadEnd(r, q, idx-1, "no unvisited neighbours")
	}
	r.ArmDeadline(key, idx)
	return nil
}

func handleIncoming(rs *state.RouterState, r Router, from netip.AddrPort, in state.IncomingQuery) error {
	me := in.Route[in.Cursor]
	if me.Station != rs.Name {
		r.Log(CorrelationMiss, "reply addressed to another station", "query", in.ID, "station", me.Station, "from", from)
		return nil
	}
	key := state.KeyOf(in.Query, in.Cursor)
	if _, err := rs.Store.ResolveForward(key, from); err != nil {
		r.Log(CorrelationMiss, err.Error(), "from", from)
		return nil
	}
	rs.Store.StashReply(key, in)
	if n := rs.Store.OutstandingCount(key); n > 0 {
		r.Log(ReplyBanked, key.String(), "outstanding", n, "route_end", in.RouteEndFound)
		return nil
	}
	return settleHop(rs, r, key, "")
}

// ExpireHop gives up on the outstanding forwards of a hop and reports whatever has been banked.
func ExpireHop(rs *state.RouterState, r Router, key state.HopKey) error {
	if !rs.Store.IsOpen(key) {
		return nil
	}
	r.Log(HopExpired, key.String(), "outstanding", rs.Store.OutstandingCount(key))
	return settleHop(rs, r, key, ReasonTimeout)
}

// settleHop aggregates the replies banked for a hop and reports the winner towards the origin.
func settleHop(rs *state.RouterState, r Router, key state.HopKey, reason string) error {
	hop, dropped, ok := rs.Store.Close(key)
	if !ok {
		r.Log(InconsistentState, "settling a hop that is not open", "key", key)
		return nil
	}
	r.DisarmDeadline(key)
	replies := rs.Store.DrainReplies(key)

	best, found := Aggregate(hop.Origin.TripType, replies)
	if !found {
		best = hop.Origin.Truncate(hop.Depth + 1)
		best.RouteEndFound = true
	}
	r.Log(HopSettled, key.String(), "replies", len(replies), "dropped", len(dropped), "found", found)

	if hop.Depth == 0 {
		if !found && reason == "" {
			reason = ReasonNoRoute
		}
		return resolveRootWith(rs, r, best, reason)
	}
	return sendIncoming(r, state.IncomingQuery{Query: best, Cursor: hop.Depth - 1})
}

func resolveRoot(rs *state.RouterState, r Router, q state.Query) error {
	reason := ""
	if q.RouteEndFound {
		reason = ReasonUnreachable
	}
	return resolveRootWith(rs, r, q, reason)
}

func resolveRootWith(rs *state.RouterState, r Router, q state.Query, reason string) error {
	w, err := rs.Store.TakeWaiter(q.ID)
	if err != nil {
		// the client went away while the query was in flight
		r.Log(CorrelationMiss, err.Error())
		return nil
	}
	res := BuildResult(q)
	if !res.Found() {
		res.Reason = reason
		if res.Reason == "" {
			res.Reason = ReasonNoRoute
		}
	}
	r.Log(QueryDelivered, q.String(), "found", res.Found())
	r.Deliver(w, res)
	return nil
}

// flood forwards q to every neighbour not yet on its route, registering each forward under key.
func flood(rs *state.RouterState, r Router, q state.Query, key state.HopKey, parent netip.AddrPort) (int, error) {
	idx := len(q.Route) - 1
	if err := rs.Store.Open(state.OpenHop{Key: key, Origin: q, Parent: parent, Depth: idx}); err != nil {
		r.Log(InconsistentState, err.Error())
		return 0, nil
	}
	sent := 0
	for _, n := range rs.Neighbours {
		if q.Visited(n) {
			continue
		}
		fwd := state.OutstandingForward{Key: key, Parent: parent, Self: rs.Addr, Neighbour: n}
		if err := rs.Store.RegisterForward(fwd); err != nil {
			r.Log(InconsistentState, err.Error())
			continue
		}
		if err := r.SendQuery(n, state.OutgoingQuery{Query: q}); err != nil {
			_, _ = rs.Store.ResolveForward(key, n)
			if state.IsFatal(err) {
				return sent, err
			}
			r.Log(SendFailed, err.Error(), "to", n)
			continue
		}
		sent++
	}
	if sent == 0 {
		rs.Store.Close(key)
	} else {
		r.Log(QueryForwarded, key.String(), "neighbours", sent)
	}
	return sent, nil
}

// hasContinuation reports whether hop offers a trip to a station that is not already on the route.
func hasContinuation(q state.Query, hop state.RouteHop) bool {
	for _, t := range hop.Trips {
		if !q.VisitedStation(t.Destination) {
			return true
		}
	}
	return false
}

func replyDeadEnd(r Router, q state.Query, cursor int, why string) error {
	q.RouteEndFound = true
	r.Log(DeadEnd, q.String(), "reason", why)
	return sendIncoming(r, state.IncomingQuery{Query: q, Cursor: cursor})
}

func sendIncoming(r Router, in state.IncomingQuery) error {
	to := in.Route[in.Cursor].Addr
	if err := r.SendQuery(to, in); err != nil {
		if state.IsFatal(err) {
			return err
		}
		r.Log(SendFailed, err.Error(), "to", to)
	}
	return nil
}

// Comparator picks the best of the replies banked for a hop.
type Comparator func(replies []state.IncomingQuery) (state.Query, bool)

var comparators = map[state.TripType]Comparator{
	state.FastestTrip: FastestTrip,
}

// Aggregate selects the best reply for the trip type. found is false when no reply reached the destination.
func Aggregate(tt state.TripType, replies []state.IncomingQuery) (state.Query, bool) {
	cmp, ok := comparators[tt]
	if !ok {
		cmp = FastestTrip
	}
	return cmp(replies)
}

// FastestTrip picks the reply arriving earliest at the destination. Ties keep the earlier reply.
func FastestTrip(replies []state.IncomingQuery) (state.Query, bool) {
	var (
		best    state.Query
		bestArr timetable.Clock
		found   bool
	)
	for _, rep := range replies {
		if rep.RouteEndFound {
			continue
		}
		arr, ok := rep.Arrival()
		if !ok {
			continue
		}
		if !found || arr < bestArr {
			best, bestArr, found = rep.Query, arr, true
		}
	}
	return best, found
}

// BuildResult flattens a resolved query into the legs a client travels.
func BuildResult(q state.Query) state.Result {
	res := state.Result{
		Query:         q.ID,
		Source:        q.Source,
		Destination:   q.Destination,
		RequestedTime: q.RequestedTime,
		TripType:      q.TripType,
		RouteEndFound: q.RouteEndFound,
	}
	if q.RouteEndFound {
		return res
	}
	for i, hop := range q.Route {
		next := q.Destination
		if i+1 < len(q.Route) {
			next = q.Route[i+1].Station
		}
		trips := hop.TripsTo(next)
		if len(trips) == 0 {
			res.RouteEndFound = true
			res.Legs = nil
			return res
		}
		leg := trips[0]
		for _, t := range trips[1:] {
			if t.Arrival < leg.Arrival {
				leg = t
			}
		}
		res.Legs = append(res.Legs, state.Leg{Station: hop.Station, Trip: leg})
	}
	return res
}

// QueryPhase reports where a query stands at this station.
func QueryPhase(rs *state.RouterState, id state.QueryID) state.QueryPhase {
	return rs.Store.Phase(id)
}
