package core

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/encodeous/station/perf"
	"github.com/encodeous/station/state"
	"github.com/jellydator/ttlcache/v3"
)

// QueryRouter owns the router state and implements Router on top of the station's links.
type QueryRouter struct {
	*state.State
	// Deadlines holds one entry per open hop, expiring when the hop should give up
	Deadlines        *ttlcache.Cache[state.HopKey, int]
	unsubscribeEvict func()
}

func (r *QueryRouter) SendQuery(to netip.AddrPort, msg state.Message) error {
	link := Get[*StationLink](r.State)
	if err := link.Send(to, msg); err != nil {
		return err
	}
	Get[*StationTrace](r.State).Submit(TraceSent, to, msg)
	return nil
}

func (r *QueryRouter) Deliver(w state.ClientWaiter, res state.Result) {
	perf.QueriesResolved.Add(1)
	if !res.Found() {
		perf.QueriesUnrouted.Add(1)
	}
	Get[*StationTrace](r.State).Submit(TraceDelivered, netip.AddrPort{}, res)
	w.Respond(res)
}

func (r *QueryRouter) ArmDeadline(key state.HopKey, depth int) {
	r.Deadlines.Set(key, depth, r.HopTimeout(depth))
}

func (r *QueryRouter) DisarmDeadline(key state.HopKey) {
	r.Deadlines.Delete(key)
}

func (r *QueryRouter) Log(event RouterEvent, desc string, args ...any) {
	if event.IsWarning() {
		perf.RouterWarnings.Add(1)
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (r *QueryRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	cfg := &s.Env.StationCfg
	s.RouterState = &state.RouterState{
		Name:       cfg.Name,
		Addr:       cfg.AdvertiseAddr(),
		Neighbours: cfg.Neighbours,
		Store:      state.NewCorrelationStore(),
		MaxHops:    cfg.MaxHops,
		Timeout:    cfg.QueryTimeout(),
	}

	r.Deadlines = ttlcache.New[state.HopKey, int](
		ttlcache.WithDisableTouchOnHit[state.HopKey, int](),
	)
	env := s.Env
	r.unsubscribeEvict = r.Deadlines.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[state.HopKey, int]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		key := item.Key()
		// eviction callbacks run off the dispatch goroutine
		env.Dispatch(func(s *state.State) error {
			return routerExpireHop(s, key)
		})
	})
	s.Env.RepeatTask(func(s *state.State) error {
		r.Deadlines.DeleteExpired()
		return nil
	}, state.DeadlineSweepDelay)

	s.Env.RepeatTask(func(s *state.State) error {
		st := s.Store.Stats()
		perf.OpenHops.Add(float64(st.OpenHops))
		perf.PendingClients.Add(float64(st.Waiters))
		return nil
	}, state.StatsSampleDelay)
	return nil
}

func (r *QueryRouter) Cleanup(s *state.State) error {
	if r.Deadlines != nil {
		r.unsubscribeEvict()
		r.Deadlines.DeleteAll()
	}
	r.State = nil
	return nil
}

func routerHandleQuery(s *state.State, from netip.AddrPort, msg state.Message) error {
	r := Get[*QueryRouter](s)
	Get[*StationTrace](s).Submit(TraceReceived, from, msg)
	return HandleQuery(s.RouterState, r, from, msg)
}

func routerHandleClient(s *state.State, w state.ClientWaiter) error {
	r := Get[*QueryRouter](s)
	return HandleClientRequest(s.RouterState, r, w)
}

// routerClientGone forgets a waiter whose client disconnected. Forwards already in flight settle normally.
func routerClientGone(s *state.State, id state.QueryID) error {
	if _, err := s.Store.TakeWaiter(id); err == nil {
		s.Log.Debug("client disconnected before its query resolved", "query", id)
	}
	return nil
}

func routerExpireHop(s *state.State, key state.HopKey) error {
	if !s.Store.IsOpen(key) {
		return nil
	}
	perf.HopsExpired.Add(1)
	return ExpireHop(s.RouterState, Get[*QueryRouter](s), key)
}
