package state

import (
	"fmt"
	"net/netip"
)

// OutstandingForward is a query this station forwarded to a neighbour and has not heard back about.
type OutstandingForward struct {
	Key       HopKey
	Parent    netip.AddrPort
	Self      netip.AddrPort
	Neighbour netip.AddrPort
}

// OpenHop is a station's participation in a query along one path, from flooding until it reports upward.
type OpenHop struct {
	Key    HopKey
	Origin Query
	Parent netip.AddrPort
	Depth  int
}

type hopRecord struct {
	OpenHop
	forwards map[netip.AddrPort]OutstandingForward
}

type CorrelationStats struct {
	OpenHops    int
	Outstanding int
	Banked      int
	Waiters     int
}

// CorrelationStore tracks outstanding forwards, banked replies and client waiters.
// It must only be used from the dispatch goroutine.
type CorrelationStore struct {
	hops    map[HopKey]*hopRecord
	bank    map[HopKey][]IncomingQuery
	waiters map[QueryID]ClientWaiter
}

func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{
		hops:    make(map[HopKey]*hopRecord),
		bank:    make(map[HopKey][]IncomingQuery),
		waiters: make(map[QueryID]ClientWaiter),
	}
}

// Open begins tracking a hop. Origin is the query as this station forwards it.
func (c *CorrelationStore) Open(hop OpenHop) error {
	if _, ok := c.hops[hop.Key]; ok {
		return fmt.Errorf("%w: hop %s already open", ErrDuplicateForward, hop.Key)
	}
	c.hops[hop.Key] = &hopRecord{
		OpenHop:  hop,
		forwards: make(map[netip.AddrPort]OutstandingForward),
	}
	return nil
}

func (c *CorrelationStore) IsOpen(key HopKey) bool {
	_, ok := c.hops[key]
	return ok
}

func (c *CorrelationStore) RegisterForward(fwd OutstandingForward) error {
	rec, ok := c.hops[fwd.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHopNotOpen, fwd.Key)
	}
	n := NormalizeAddr(fwd.Neighbour)
	if _, ok := rec.forwards[n]; ok {
		return fmt.Errorf("%w: %s to %s", ErrDuplicateForward, fwd.Key, n)
	}
	fwd.Neighbour = n
	rec.forwards[n] = fwd
	return nil
}

// ResolveForward removes the forward made to sender. Replies from neighbours that were never
// forwarded to, or that already replied, are correlation misses.
func (c *CorrelationStore) ResolveForward(key HopKey, sender netip.AddrPort) (OutstandingForward, error) {
	rec, ok := c.hops[key]
	if !ok {
		return OutstandingForward{}, fmt.Errorf("%w: no open hop %s", ErrCorrelationMiss, key)
	}
	sender = NormalizeAddr(sender)
	fwd, ok := rec.forwards[sender]
	if !ok {
		return OutstandingForward{}, fmt.Errorf("%w: %s has no forward to %s", ErrCorrelationMiss, key, sender)
	}
	delete(rec.forwards, sender)
	return fwd, nil
}

func (c *CorrelationStore) OutstandingCount(key HopKey) int {
	rec, ok := c.hops[key]
	if !ok {
		return 0
	}
	return len(rec.forwards)
}

// Close stops tracking the hop, dropping any forwards still outstanding.
func (c *CorrelationStore) Close(key HopKey) (OpenHop, []OutstandingForward, bool) {
	rec, ok := c.hops[key]
	if !ok {
		return OpenHop{}, nil, false
	}
	delete(c.hops, key)
	dropped := make([]OutstandingForward, 0, len(rec.forwards))
	for _, fwd := range rec.forwards {
		dropped = append(dropped, fwd)
	}
	return rec.OpenHop, dropped, true
}

func (c *CorrelationStore) StashReply(key HopKey, reply IncomingQuery) {
	c.bank[key] = append(c.bank[key], reply)
}

// DrainReplies removes and returns the banked replies in arrival order.
func (c *CorrelationStore) DrainReplies(key HopKey) []IncomingQuery {
	replies := c.bank[key]
	delete(c.bank, key)
	return replies
}

func (c *CorrelationStore) RegisterWaiter(w ClientWaiter) error {
	if _, ok := c.waiters[w.Query]; ok {
		return fmt.Errorf("%w: waiter for %s already registered", ErrDuplicateForward, w.Query)
	}
	c.waiters[w.Query] = w
	return nil
}

func (c *CorrelationStore) TakeWaiter(id QueryID) (ClientWaiter, error) {
	w, ok := c.waiters[id]
	if !ok {
		return ClientWaiter{}, fmt.Errorf("%w: %s", ErrWaiterNotFound, id)
	}
	delete(c.waiters, id)
	return w, nil
}

func (c *CorrelationStore) HasWaiter(id QueryID) bool {
	_, ok := c.waiters[id]
	return ok
}

// Phase reports the lifecycle phase of the query at this station.
func (c *CorrelationStore) Phase(id QueryID) QueryPhase {
	if _, ok := c.waiters[id]; ok {
		return RootPending
	}
	for key := range c.hops {
		if key.Query == id {
			return ForwardPending
		}
	}
	return Resolved
}

// Keys lists the open hops belonging to a query.
func (c *CorrelationStore) Keys(id QueryID) []HopKey {
	var keys []HopKey
	for key := range c.hops {
		if key.Query == id {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *CorrelationStore) Stats() CorrelationStats {
	st := CorrelationStats{
		OpenHops: len(c.hops),
		Waiters:  len(c.waiters),
	}
	for _, rec := range c.hops {
		st.Outstanding += len(rec.forwards)
	}
	for _, replies := range c.bank {
		st.Banked += len(replies)
	}
	return st
}
