package core

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/encodeous/station/perf"
	"github.com/encodeous/station/presenter"
	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// ClientLink accepts journey requests over tcp, one request per connection.
type ClientLink struct {
	listener net.Listener
	group    *errgroup.Group
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
}

func (l *ClientLink) Init(s *state.State) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(s.Context, "tcp", s.ClientBind.String())
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", state.ErrTransport, s.ClientBind, err)
	}
	if s.MaxClients > 0 {
		ln = netutil.LimitListener(ln, s.MaxClients)
	}
	l.listener = ln
	l.conns = make(map[net.Conn]struct{})
	l.group = &errgroup.Group{}
	s.Log.Info("client link listening", "addr", ln.Addr().String())

	e := s.Env
	l.group.Go(func() error {
		return l.acceptLoop(e)
	})
	return nil
}

func (l *ClientLink) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *ClientLink) acceptLoop(e *state.Env) error {
	for e.Context.Err() == nil {
		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || e.Context.Err() != nil {
				return nil
			}
			e.Log.Warn("Failed to accept connection", "err", err)
			continue
		}
		if !l.track(conn) {
			conn.Close()
			return nil
		}
		l.group.Go(func() error {
			defer l.untrack(conn)
			l.serve(e, conn)
			return nil
		})
	}
	return nil
}

func (l *ClientLink) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conns == nil {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *ClientLink) untrack(conn net.Conn) {
	conn.Close()
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

func (l *ClientLink) serve(e *state.Env, conn net.Conn) {
	perf.ClientRequests.Add(1)
	_ = conn.SetReadDeadline(time.Now().Add(state.ClientReadTimeout))
	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		e.Log.Debug("failed to read client request", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	req.RemoteAddr = conn.RemoteAddr().String()
	now := timetable.ClockOf(time.Now())

	creq, err := ParseClientRequest(req, e.Name, now)
	switch {
	case errors.Is(err, errNoDestination):
		res, werr := e.DispatchWait(func(s *state.State) (any, error) {
			return presenter.NewPage(s.RouterState.Timetable, s.RouterState.Name, now), nil
		})
		if werr != nil {
			return
		}
		l.respond(e, conn, http.StatusOK, creq.Format, res.(presenter.Page))
		return
	case err != nil:
		e.Log.Debug("rejected client request", "remote", req.RemoteAddr, "url", req.URL.String(), "error", err)
		l.respond(e, conn, statusOf(err), creq.Format, presenter.Page{Station: e.Name, Error: describe(err)})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	res, ok := l.await(e, conn, creq)
	if !ok {
		return
	}
	l.respond(e, conn, http.StatusOK, creq.Format, presenter.Page{Station: e.Name, Result: &res})
}

// await hands the request to the router and blocks until it is resolved, the client leaves or the station stops.
func (l *ClientLink) await(e *state.Env, conn net.Conn, req state.ClientRequest) (state.Result, bool) {
	done := make(chan state.Result, 1)
	id := state.NewQueryID()
	start := time.Now()
	w := state.ClientWaiter{
		Query:   id,
		Request: req,
		Respond: func(res state.Result) {
			select {
			case done <- res:
			default:
			}
		},
	}
	e.Dispatch(func(s *state.State) error {
		return routerHandleClient(s, w)
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case res := <-done:
		perf.QueryLatency.Add(float64(time.Since(start).Milliseconds()))
		return res, true
	case <-gone:
		e.Log.Debug("client left before its query resolved", "query", id, "remote", req.Remote)
		e.Dispatch(func(s *state.State) error {
			return routerClientGone(s, id)
		})
	case <-e.Context.Done():
	}
	return state.Result{}, false
}

func (l *ClientLink) respond(e *state.Env, conn net.Conn, status int, format state.Format, p presenter.Page) {
	ct, body, err := presenter.Render(format, p)
	if err != nil {
		e.Log.Error("failed to render response", "error", err)
		status, ct, body = http.StatusInternalServerError, "text/plain; charset=utf-8", []byte(err.Error())
	}
	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         true,
	}
	resp.Header.Set("Content-Type", ct)
	_ = conn.SetWriteDeadline(time.Now().Add(state.ClientWriteTimeout))
	if err := resp.Write(conn); err != nil {
		e.Log.Debug("failed to write client response", "remote", conn.RemoteAddr(), "error", err)
	}
}

func (l *ClientLink) Cleanup(s *state.State) error {
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.conns = nil
	l.mu.Unlock()
	_ = l.group.Wait()
	return err
}
