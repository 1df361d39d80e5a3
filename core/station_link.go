package core

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/station/perf"
	"github.com/encodeous/station/protocol"
	"github.com/encodeous/station/state"
	"golang.org/x/sync/errgroup"
)

// StationLink is the single UDP socket shared with every neighbouring station.
type StationLink struct {
	conn  *net.UDPConn
	group *errgroup.Group
}

func (l *StationLink) Init(s *state.State) error {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(s.Context, "udp", s.StationBind.String())
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", state.ErrTransport, s.StationBind, err)
	}
	l.conn = pc.(*net.UDPConn)
	l.group = &errgroup.Group{}
	s.Log.Info("station link listening", "addr", l.conn.LocalAddr().String(), "neighbours", len(s.Env.Neighbours))

	e := s.Env
	l.group.Go(func() error {
		return l.readLoop(e)
	})
	return nil
}

func (l *StationLink) readLoop(e *state.Env) error {
	buf := make([]byte, state.MaxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if e.Context.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			err = state.NewError(state.KindTransport, "station recv", state.QueryID{}, err)
			e.Log.Error("station socket failed", "error", err)
			e.Cancel(err)
			return err
		}
		perf.RecvPacketPerSecond.Add(1)
		perf.RecvBytesPerSecond.Add(float64(n))

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			perf.MalformedPerSecond.Add(1)
			e.Log.Warn("dropped malformed datagram", "from", from, "error", err)
			continue
		}
		from = state.NormalizeAddr(from)
		e.Dispatch(func(s *state.State) error {
			return routerHandleQuery(s, from, msg)
		})
	}
}

// Send encodes and writes a message to another station. Only a closed socket is reported as a transport failure,
// a failed write to one neighbour is not.
func (l *StationLink) Send(to netip.AddrPort, msg state.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	_, err = l.conn.WriteToUDPAddrPort(b, to)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return state.NewError(state.KindTransport, "station send", msg.Inner().ID, err)
		}
		return fmt.Errorf("send to %s: %w", to, err)
	}
	perf.SentPacketPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(b)))
	return nil
}

func (l *StationLink) LocalAddr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (l *StationLink) Cleanup(s *state.State) error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	if gerr := l.group.Wait(); gerr != nil {
		s.Log.Debug("station link reader stopped", "error", gerr)
	}
	return err
}
