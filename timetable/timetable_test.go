package timetable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const busportTimetable = `BusportA,12,40
08:00,bus1,stopA,08:30,JunctionB
08:15,bus2,stopB,08:50,TerminalC
09:00,bus1,stopA,09:30,JunctionB
07:45,bus3,stopC,08:05,JunctionB
`

func mustParse(t *testing.T, s string) *Snapshot {
	t.Helper()
	snap, err := Parse(strings.NewReader(s))
	require.NoError(t, err)
	return snap
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(9*60+5), c)
	assert.Equal(t, "09:05", c.String())

	c, err = ParseClock("7:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30", c.String())

	for _, bad := range []string{"", "0930", "24:00", "12:60", "ab:cd", "12:5", "-1:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestClockOf(t *testing.T) {
	ts := time.Date(2024, 3, 1, 17, 42, 10, 0, time.UTC)
	assert.Equal(t, "17:42", ClockOf(ts).String())
}

func TestParse(t *testing.T) {
	snap := mustParse(t, busportTimetable)
	assert.Equal(t, "BusportA", snap.Station)
	assert.Equal(t, 12.0, snap.X)
	assert.Equal(t, 40.0, snap.Y)
	assert.Len(t, snap.Trips, 4)
	assert.Equal(t, Trip{
		Departure:   8 * 60,
		Service:     "bus1",
		Platform:    "stopA",
		Arrival:     8*60 + 30,
		Destination: "JunctionB",
	}, snap.Trips[0])
}

func TestParseRejectsBadRows(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("A,1,2\n08:00,bus,stop,08:10\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = Parse(strings.NewReader("A,1,2\n8am,bus,stop,08:10,B\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("A,1,2\n08:00,bus,stop,08:10,\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("A,north,2\n"))
	assert.Error(t, err)
}

func TestEarliestTrips(t *testing.T) {
	snap := mustParse(t, busportTimetable)

	trips := snap.EarliestTrips(8 * 60)
	require.Len(t, trips, 2)
	assert.Equal(t, "JunctionB", trips[0].Destination)
	assert.Equal(t, Clock(8*60), trips[0].Departure)
	assert.Equal(t, "TerminalC", trips[1].Destination)

	// an earlier trip later in the file still wins
	trips = snap.EarliestTrips(7 * 60)
	require.Len(t, trips, 2)
	assert.Equal(t, "bus3", trips[0].Service)

	trips = snap.EarliestTrips(8*60 + 20)
	require.Len(t, trips, 1)
	assert.Equal(t, Clock(9*60), trips[0].Departure)

	assert.Empty(t, snap.EarliestTrips(22*60))

	var nilSnap *Snapshot
	assert.Empty(t, nilSnap.EarliestTrips(0))
}

func TestTripsTo(t *testing.T) {
	snap := mustParse(t, busportTimetable)
	assert.Len(t, TripsTo(snap.Trips, "JunctionB"), 3)
	assert.Empty(t, TripsTo(snap.Trips, "Nowhere"))
	assert.Equal(t, []string{"JunctionB", "TerminalC"}, snap.Destinations())
}

func TestLoadAndChanged(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(dir, "BusportA")
	assert.Equal(t, filepath.Join(dir, "tt-BusportA"), path)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoTimetable)

	require.NoError(t, os.WriteFile(path, []byte(busportTimetable), 0o644))
	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, snap.Path)

	changed, err := snap.Changed()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte(busportTimetable+"10:00,bus9,stopZ,10:20,TerminalC\n"), 0o644))
	later := snap.ModTime.Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	changed, err = snap.Changed()
	require.NoError(t, err)
	assert.True(t, changed)

	next, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, next.Trips, 5)
	assert.Len(t, snap.Trips, 4)
}
