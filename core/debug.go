package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/encodeous/station/state"
)

// DebugEndpoint serves expvar, metrics and a station dump on the debug bind, if one is configured.
type DebugEndpoint struct {
	server *http.Server
	done   chan struct{}
}

func (d *DebugEndpoint) Init(s *state.State) error {
	if s.DebugBind == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.DebugBind)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/debug/inspect", inspectHandler(s.Env))
	mux.Handle("/", http.DefaultServeMux)
	d.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.done = make(chan struct{})
	s.Log.Info("debug endpoint listening", "addr", ln.Addr().String())
	log := s.Log
	go func() {
		defer close(d.done)
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("debug endpoint stopped", "error", err)
		}
	}()
	return nil
}

func (d *DebugEndpoint) Cleanup(s *state.State) error {
	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.server.Shutdown(ctx)
	<-d.done
	return err
}
