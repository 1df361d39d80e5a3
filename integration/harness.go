//go:build integration

package integration

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/station/core"
	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"github.com/stretchr/testify/require"
)

// StationHarness runs real stations on loopback, each in its own goroutine.
type StationHarness struct {
	t       *testing.T
	Dir     string
	Cfgs    []state.StationCfg
	Context context.Context
	Cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewHarness(t *testing.T) *StationHarness {
	return &StationHarness{t: t, Dir: t.TempDir()}
}

func freeUDP(t *testing.T) netip.AddrPort {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	return pc.LocalAddr().(*net.UDPAddr).AddrPort()
}

func freeTCP(t *testing.T) netip.AddrPort {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).AddrPort()
}

// WriteTimetable replaces a station's timetable file. Rows omit the header.
func (h *StationHarness) WriteTimetable(name string, rows ...string) string {
	path := timetable.PathFor(h.Dir, name)
	body := name + ",0,0\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func (h *StationHarness) NewStation(name string, rows ...string) *state.StationCfg {
	h.Cfgs = append(h.Cfgs, state.StationCfg{
		Name:             name,
		ClientBind:       freeTCP(h.t),
		StationBind:      freeUDP(h.t),
		Timetable:        h.WriteTimetable(name, rows...),
		QueryTimeoutMs:   2000,
		ReloadIntervalMs: 50,
	})
	return &h.Cfgs[len(h.Cfgs)-1]
}

func (h *StationHarness) indexOf(name string) int {
	for i, cfg := range h.Cfgs {
		if cfg.Name == name {
			return i
		}
	}
	h.t.Fatalf("no station %s", name)
	return -1
}

func (h *StationHarness) Link(a, b string) {
	ca, cb := &h.Cfgs[h.indexOf(a)], &h.Cfgs[h.indexOf(b)]
	ca.Neighbours = append(ca.Neighbours, cb.StationBind)
	cb.Neighbours = append(cb.Neighbours, ca.StationBind)
}

// Start launches every station and waits until each accepts clients.
func (h *StationHarness) Start() <-chan error {
	h.Context, h.Cancel = context.WithCancel(context.Background())
	errs := make(chan error, len(h.Cfgs))
	for _, cfg := range h.Cfgs {
		require.NoError(h.t, state.StationConfigValidator(&cfg))
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := core.Start(h.Context, cfg, slog.LevelDebug, nil); err != nil {
				errs <- fmt.Errorf("%s: %w", cfg.Name, err)
			}
		}()
	}
	for _, cfg := range h.Cfgs {
		require.Eventually(h.t, func() bool {
			conn, err := net.Dial("tcp", cfg.ClientBind.String())
			if err != nil {
				return false
			}
			conn.Close()
			return true
		}, 5*time.Second, 10*time.Millisecond, "%s did not start", cfg.Name)
	}
	return errs
}

func (h *StationHarness) Stop() {
	if h.Cancel != nil {
		h.Cancel()
	}
	h.wg.Wait()
}

// Get sends a raw request to a station's client port and returns the response and its body.
func (h *StationHarness) Get(name string, query url.Values, header http.Header) (*http.Response, []byte) {
	h.t.Helper()
	conn, err := net.Dial("tcp", h.Cfgs[h.indexOf(name)].ClientBind.String())
	require.NoError(h.t, err)
	defer conn.Close()
	require.NoError(h.t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	req, err := http.NewRequest(http.MethodGet, "http://"+name+"/?"+query.Encode(), nil)
	require.NoError(h.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	require.NoError(h.t, req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, body
}
