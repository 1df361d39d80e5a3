package core

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/encodeous/station/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRequest(t *testing.T, raw string) *http.Request {
	t.Helper()
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	return req
}

func TestParseClientRequest(t *testing.T) {
	req := readRequest(t, "GET /?station=TerminalC&time=08:15&tripType=fastest HTTP/1.1\r\nHost: x\r\n\r\n")
	creq, err := ParseClientRequest(req, "BusportA", 600)
	require.NoError(t, err)
	assert.Equal(t, "TerminalC", creq.Destination)
	assert.Equal(t, clock(t, "08:15"), creq.Time)
	assert.Equal(t, state.FastestTrip, creq.TripType)
	assert.Equal(t, state.FormatHTML, creq.Format)
}

func TestParseClientRequestDefaults(t *testing.T) {
	req := readRequest(t, "GET /?to=TerminalC HTTP/1.1\r\nHost: x\r\nAccept: text/html;q=0.9, application/json\r\n\r\n")
	creq, err := ParseClientRequest(req, "BusportA", 600)
	require.NoError(t, err)
	assert.Equal(t, "TerminalC", creq.Destination)
	assert.Equal(t, clock(t, "10:00"), creq.Time)
	assert.Equal(t, state.FormatJSON, creq.Format)
}

func TestParseClientRequestPost(t *testing.T) {
	body := "station=TerminalC&format=json"
	req := readRequest(t, "POST / HTTP/1.1\r\nHost: x\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: "+
		strconv.Itoa(len(body))+"\r\n\r\n"+body)
	creq, err := ParseClientRequest(req, "BusportA", 0)
	require.NoError(t, err)
	assert.Equal(t, "TerminalC", creq.Destination)
	assert.Equal(t, state.FormatJSON, creq.Format)
}

func TestParseClientRequestErrors(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		status int
	}{
		{"form", "GET / HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusOK},
		{"path", "GET /favicon.ico HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusNotFound},
		{"method", "DELETE /?station=C HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusMethodNotAllowed},
		{"bad time", "GET /?station=C&time=25:00 HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusBadRequest},
		{"bad type", "GET /?station=C&tripType=scenic HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusBadRequest},
		{"bad name", "GET /?station=a%20b HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusBadRequest},
		{"self", "GET /?station=BusportA HTTP/1.1\r\nHost: x\r\n\r\n", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseClientRequest(readRequest(t, tc.raw), "BusportA", 0)
			require.Error(t, err)
			if tc.status == http.StatusOK {
				assert.ErrorIs(t, err, errNoDestination)
				return
			}
			assert.Equal(t, tc.status, statusOf(err))
		})
	}
}

func TestDescribe(t *testing.T) {
	_, err := ParseClientRequest(readRequest(t, "GET /?station=C&tripType=scenic HTTP/1.1\r\nHost: x\r\n\r\n"), "BusportA", 0)
	require.Error(t, err)
	assert.Equal(t, `unknown trip type "scenic"`, describe(err))
	assert.Equal(t, "not found", describe(errNotFound))
}
