package core

import (
	"net/netip"
	"time"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"golang.org/x/sync/errgroup"
)

// TimetableWatch loads the station's timetable and swaps in a new snapshot whenever the file changes.
// Handlers see either the old or the new snapshot, never a mix.
type TimetableWatch struct {
	group *errgroup.Group
}

func (w *TimetableWatch) Init(s *state.State) error {
	snap, err := timetable.Load(s.Env.Timetable)
	if err != nil {
		// keep polling, the station answers "no route" until a timetable appears
		s.Log.Warn("timetable not loaded", "path", s.Env.Timetable, "error", err)
		snap = nil
	} else {
		checkStationName(s.Env, snap)
		s.Log.Info("loaded timetable", "path", snap.Path, "trips", len(snap.Trips))
	}
	s.RouterState.Timetable = snap

	e := s.Env
	w.group = &errgroup.Group{}
	w.group.Go(func() error {
		w.watch(e, snap)
		return nil
	})
	return nil
}

func (w *TimetableWatch) watch(e *state.Env, snap *timetable.Snapshot) {
	ticker := time.NewTicker(e.ReloadInterval())
	defer ticker.Stop()
	version := 0
	if snap != nil {
		version = snap.Version
	}
	var lastErr string
	for {
		select {
		case <-e.Context.Done():
			return
		case <-ticker.C:
		}
		if snap != nil {
			changed, err := snap.Changed()
			if err != nil {
				if err.Error() != lastErr {
					e.Log.Warn("cannot stat timetable, keeping the current one", "error", err)
					lastErr = err.Error()
				}
				continue
			}
			if !changed {
				continue
			}
		}
		next, err := timetable.Load(e.Timetable)
		if err != nil {
			if err.Error() != lastErr {
				e.Log.Warn("failed to reload timetable", "error", err)
				lastErr = err.Error()
			}
			continue
		}
		lastErr = ""
		version++
		next.Version = version
		checkStationName(e, next)
		snap = next
		e.Dispatch(func(s *state.State) error {
			s.RouterState.Timetable = next
			s.Log.Info("reloaded timetable", "version", next.Version, "trips", len(next.Trips))
			Get[*StationTrace](s).Submit(TraceReloaded, netip.AddrPort{}, next)
			return nil
		})
	}
}

func checkStationName(e *state.Env, snap *timetable.Snapshot) {
	if snap.Station != e.Name {
		e.Log.Warn("timetable belongs to another station", "timetable", snap.Station, "station", e.Name)
	}
}

func (w *TimetableWatch) Cleanup(s *state.State) error {
	if w.group != nil {
		return w.group.Wait()
	}
	return nil
}
