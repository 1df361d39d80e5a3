package core

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
)

// Inspect dumps the station's neighbours, timetable and correlation state as text.
func Inspect(s *state.State) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Station %s at %s\n", s.RouterState.Name, s.RouterState.Addr))

	sb.WriteString("\nNeighbours:\n")
	if len(s.RouterState.Neighbours) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, n := range s.RouterState.Neighbours {
		sb.WriteString(fmt.Sprintf(" - %s\n", n))
	}

	sb.WriteString("\nTimetable:\n")
	tt := s.RouterState.Timetable
	if tt == nil {
		sb.WriteString(fmt.Sprintf(" (not loaded from %s)\n", s.Env.Timetable))
	} else {
		sb.WriteString(fmt.Sprintf(" path %s, version %d, %d trips, modified %s\n",
			tt.Path, tt.Version, len(tt.Trips), tt.ModTime.Format("2006-01-02 15:04:05")))
		rt := make([]string, 0)
		for _, dst := range tt.Destinations() {
			rt = append(rt, fmt.Sprintf(" - %s: %d trips", dst, len(timetable.TripsTo(tt.Trips, dst))))
		}
		slices.Sort(rt)
		sb.WriteString(strings.Join(rt, "\n") + "\n")
	}

	st := s.Store.Stats()
	sb.WriteString("\nQueries:\n")
	sb.WriteString(fmt.Sprintf(" waiting clients %d, open hops %d, outstanding forwards %d, banked replies %d\n",
		st.Waiters, st.OpenHops, st.Outstanding, st.Banked))
	return sb.String()
}

func inspectHandler(e *state.Env) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			return Inspect(s), nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(res.(string)))
	})
}
