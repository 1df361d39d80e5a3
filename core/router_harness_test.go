package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/station/protocol"
	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type envelope struct {
	from netip.AddrPort
	to   netip.AddrPort
	msg  state.Message
}

// RouterHarness records the side effects of one station's router. Sent messages are handed to the
// network it belongs to, if any.
type RouterHarness struct {
	name      string
	net       *SimNetwork
	actions   []HarnessEvent
	deadlines map[state.HopKey]int
	delivered []state.Result
	sendErr   map[netip.AddrPort]error
}

func NewRouterHarness(name string) *RouterHarness {
	return &RouterHarness{
		name:      name,
		deadlines: make(map[state.HopKey]int),
		sendErr:   make(map[netip.AddrPort]error),
	}
}

func (h *RouterHarness) SendQuery(to netip.AddrPort, msg state.Message) error {
	if err := h.sendErr[to]; err != nil {
		return err
	}
	switch m := msg.(type) {
	case state.OutgoingQuery:
		h.actions = append(h.actions, MakeEvent("SEND_OUTGOING", to, m.Query.String()))
	case state.IncomingQuery:
		h.actions = append(h.actions, MakeEvent("SEND_INCOMING", to, m.Cursor, m.RouteEndFound))
	}
	if h.net != nil {
		h.net.queue = append(h.net.queue, envelope{from: h.net.addrOf(h.name), to: to, msg: msg})
	}
	return nil
}

func (h *RouterHarness) Deliver(w state.ClientWaiter, res state.Result) {
	h.actions = append(h.actions, MakeEvent("DELIVER", w.Query, res.Found()))
	h.delivered = append(h.delivered, res)
	if w.Respond != nil {
		w.Respond(res)
	}
}

func (h *RouterHarness) ArmDeadline(key state.HopKey, depth int) {
	h.actions = append(h.actions, MakeEvent("ARM", key.Path, depth))
	h.deadlines[key] = depth
}

func (h *RouterHarness) DisarmDeadline(key state.HopKey) {
	delete(h.deadlines, key)
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range e {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears every recorded side effect, except logs.
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns and clears the router events that were logged.
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	rest := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		} else {
			rest = append(rest, action)
		}
	}
	h.actions = rest
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.AddrPort{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// SimStation is a router driven by the harness instead of the dispatch loop.
type SimStation struct {
	*state.RouterState
	H *RouterHarness
}

// SimNetwork delivers messages between simulated stations in send order. Every message goes
// through the wire codec.
type SimNetwork struct {
	t        *testing.T
	stations map[string]*SimStation
	byAddr   map[netip.AddrPort]*SimStation
	queue    []envelope
	// Drop discards matching messages instead of delivering them.
	Drop func(from, to string, msg state.Message) bool
}

func NewSimNetwork(t *testing.T) *SimNetwork {
	return &SimNetwork{
		t:        t,
		stations: make(map[string]*SimStation),
		byAddr:   make(map[netip.AddrPort]*SimStation),
	}
}

// AddStation registers a station with a timetable given as csv rows, without the header.
func (n *SimNetwork) AddStation(name string, rows ...string) *SimStation {
	n.t.Helper()
	csv := name + ",0,0\n" + strings.Join(rows, "\n") + "\n"
	snap, err := timetable.Parse(strings.NewReader(csv))
	require.NoError(n.t, err)

	addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), uint16(20000+len(n.stations)))
	h := NewRouterHarness(name)
	h.net = n
	st := &SimStation{
		RouterState: &state.RouterState{
			Name:      name,
			Addr:      addr,
			Timetable: snap,
			Store:     state.NewCorrelationStore(),
			MaxHops:   state.DefaultMaxHops,
			Timeout:   state.DefaultQueryTimeout,
		},
		H: h,
	}
	n.stations[name] = st
	n.byAddr[addr] = st
	return st
}

// Link makes two stations neighbours of each other.
func (n *SimNetwork) Link(a, b string) {
	sa, sb := n.stations[a], n.stations[b]
	sa.Neighbours = append(sa.Neighbours, sb.Addr)
	sb.Neighbours = append(sb.Neighbours, sa.Addr)
}

func (n *SimNetwork) Get(name string) *SimStation {
	return n.stations[name]
}

func (n *SimNetwork) addrOf(name string) netip.AddrPort {
	return n.stations[name].Addr
}

// Ask starts a client query at station from and returns a channel receiving its result.
func (n *SimNetwork) Ask(from, dest string, at timetable.Clock) (state.QueryID, <-chan state.Result) {
	n.t.Helper()
	done := make(chan state.Result, 1)
	w := state.ClientWaiter{
		Query: state.NewQueryID(),
		Request: state.ClientRequest{
			Destination: dest,
			Time:        at,
			TripType:    state.FastestTrip,
		},
		Respond: func(res state.Result) {
			done <- res
		},
	}
	st := n.stations[from]
	require.NoError(n.t, HandleClientRequest(st.RouterState, st.H, w))
	return w.Query, done
}

// Step delivers the oldest queued message. It reports false once the queue is empty.
func (n *SimNetwork) Step() bool {
	n.t.Helper()
	if len(n.queue) == 0 {
		return false
	}
	env := n.queue[0]
	n.queue = n.queue[1:]
	src := n.byAddr[env.from]
	dst, ok := n.byAddr[env.to]
	require.True(n.t, ok, "no station at %s", env.to)
	if n.Drop != nil && n.Drop(src.Name, dst.Name, env.msg) {
		return true
	}

	b, err := protocol.Encode(env.msg)
	require.NoError(n.t, err)
	msg, err := protocol.Decode(b)
	require.NoError(n.t, err)
	require.NoError(n.t, HandleQuery(dst.RouterState, dst.H, env.from, msg))
	return true
}

// Run delivers messages until the network is quiet.
func (n *SimNetwork) Run() int {
	n.t.Helper()
	steps := 0
	for n.Step() {
		steps++
		require.Less(n.t, steps, 10000, "network did not settle")
	}
	return steps
}

// Expire fires every armed deadline of a station, deepest hop first.
func (n *SimNetwork) Expire(name string) {
	n.t.Helper()
	st := n.stations[name]
	keys := make([]state.HopKey, 0, len(st.H.deadlines))
	for key := range st.H.deadlines {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b state.HopKey) int {
		return st.H.deadlines[b] - st.H.deadlines[a]
	})
	for _, key := range keys {
		require.NoError(n.t, ExpireHop(st.RouterState, st.H, key))
	}
}

// Quiet reports whether no station holds correlation state for the query.
func (n *SimNetwork) Quiet(id state.QueryID) bool {
	for _, st := range n.stations {
		if st.Store.Phase(id) != state.Resolved {
			return false
		}
	}
	return true
}

func clock(t *testing.T, s string) timetable.Clock {
	t.Helper()
	c, err := timetable.ParseClock(s)
	require.NoError(t, err)
	return c
}

func receive(t *testing.T, ch <-chan state.Result) state.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(time.Second):
		t.Fatal("query was not resolved")
	}
	return state.Result{}
}

func pending(ch <-chan state.Result) bool {
	select {
	case <-ch:
		return false
	default:
		return true
	}
}
