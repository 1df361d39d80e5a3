package core

import (
	"net/netip"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/station/state"
)

type TraceKind uint8

const (
	TraceReceived TraceKind = iota
	TraceSent
	TraceDelivered
	TraceReloaded
)

// TraceEvent describes something the station did. Payload is a state.Message, state.Result or *timetable.Snapshot.
type TraceEvent struct {
	Kind    TraceKind
	Peer    netip.AddrPort
	Payload any
}

// StationTrace fans out trace events to any number of observers, such as tests.
type StationTrace struct {
	broadcast.Broadcaster
}

func (n *StationTrace) Init(s *state.State) error {
	n.Broadcaster = broadcast.NewBroadcaster(state.TraceBufferSize)
	return nil
}

func (n *StationTrace) Cleanup(s *state.State) error {
	if n.Broadcaster == nil {
		return nil
	}
	return n.Broadcaster.Close()
}

func (n *StationTrace) Submit(kind TraceKind, peer netip.AddrPort, payload any) {
	n.Broadcaster.Submit(TraceEvent{Kind: kind, Peer: peer, Payload: payload})
}
