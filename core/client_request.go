package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
)

var (
	errNoDestination = errors.New("no destination requested")
	errNotFound      = errors.New("not found")
	errMethod        = errors.New("method not allowed")
)

// ParseClientRequest validates a client's http request. The returned request carries the
// response format even when err is not nil.
func ParseClientRequest(req *http.Request, self string, now timetable.Clock) (state.ClientRequest, error) {
	creq := state.ClientRequest{
		Format: FormatOf(req),
		Remote: req.RemoteAddr,
	}
	if req.URL.Path != "/" && req.URL.Path != "" {
		return creq, errNotFound
	}
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return creq, errMethod
	}
	if err := req.ParseForm(); err != nil {
		return creq, state.Malformed("client request", "%v", err)
	}
	if req.Form.Get("format") == "json" {
		creq.Format = state.FormatJSON
	}

	dest := strings.TrimSpace(req.Form.Get("station"))
	if dest == "" {
		dest = strings.TrimSpace(req.Form.Get("to"))
	}
	if dest == "" {
		return creq, errNoDestination
	}
	if err := state.NameValidator(dest); err != nil {
		return creq, state.Malformed("client request", "invalid destination: %v", err)
	}
	if dest == self {
		return creq, state.Malformed("client request", "already at %s", self)
	}
	creq.Destination = dest

	creq.Time = now
	if raw := req.Form.Get("time"); raw != "" {
		t, err := timetable.ParseClock(raw)
		if err != nil {
			return creq, state.Malformed("client request", "%v", err)
		}
		creq.Time = t
	}

	creq.TripType = state.FastestTrip
	if raw := req.Form.Get("tripType"); raw != "" {
		tt, err := state.ParseTripType(raw)
		if err != nil {
			return creq, state.Malformed("client request", "%v", err)
		}
		creq.TripType = tt
	}
	return creq, nil
}

// FormatOf picks JSON for clients that ask for it and HTML otherwise.
func FormatOf(req *http.Request) state.Format {
	for _, accept := range req.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if strings.EqualFold(mt, "application/json") {
				return state.FormatJSON
			}
		}
	}
	return state.FormatHTML
}

func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, state.ErrMalformed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func describe(err error) string {
	var se *state.StationError
	if errors.As(err, &se) && errors.Is(se.Err, state.ErrMalformed) {
		return strings.TrimPrefix(se.Err.Error(), state.ErrMalformed.Error()+": ")
	}
	return fmt.Sprint(err)
}
