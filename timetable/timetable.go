package timetable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrNoTimetable = errors.New("timetable unavailable")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Trip is a single timetable record of a station.
type Trip struct {
	Departure   Clock  `json:"departure"`
	Service     string `json:"service" validate:"required"`
	Platform    string `json:"platform"`
	Arrival     Clock  `json:"arrival"`
	Destination string `json:"destination" validate:"required"`
}

func (t Trip) String() string {
	return fmt.Sprintf("%s %s from %s, arrives %s at %s", t.Departure, t.Service, t.Platform, t.Arrival, t.Destination)
}

// Snapshot is an immutable view of a timetable file. It must not be modified after Load returns.
type Snapshot struct {
	Station string
	X, Y    float64
	Trips   []Trip
	Path    string
	ModTime time.Time
	Size    int64
	Version int
}

// FileName is the conventional name of a station's timetable file.
func FileName(station string) string {
	return "tt-" + station
}

func PathFor(dir, station string) string {
	return filepath.Join(dir, FileName(station))
}

// Parse reads a timetable. The first row holds the station name and its coordinates,
// each following row is "departure,service,platform,arrival,destination".
func Parse(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty timetable")
		}
		return nil, err
	}
	if len(header) < 1 || strings.TrimSpace(header[0]) == "" {
		return nil, fmt.Errorf("timetable header is missing the station name")
	}
	snap := &Snapshot{Station: strings.TrimSpace(header[0])}
	if len(header) >= 3 {
		if snap.X, err = strconv.ParseFloat(strings.TrimSpace(header[1]), 64); err != nil {
			return nil, fmt.Errorf("invalid x coordinate %q: %w", header[1], err)
		}
		if snap.Y, err = strconv.ParseFloat(strings.TrimSpace(header[2]), 64); err != nil {
			return nil, fmt.Errorf("invalid y coordinate %q: %w", header[2], err)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		trip, err := parseTrip(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		snap.Trips = append(snap.Trips, trip)
	}
	return snap, nil
}

func parseTrip(row []string) (Trip, error) {
	if len(row) != 5 {
		return Trip{}, fmt.Errorf("expected 5 fields, got %d", len(row))
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	dep, err := ParseClock(row[0])
	if err != nil {
		return Trip{}, err
	}
	arr, err := ParseClock(row[3])
	if err != nil {
		return Trip{}, err
	}
	trip := Trip{
		Departure:   dep,
		Service:     row[1],
		Platform:    row[2],
		Arrival:     arr,
		Destination: row[4],
	}
	if err := validate.Struct(trip); err != nil {
		return Trip{}, err
	}
	return trip, nil
}

// Load reads and parses the timetable at path, recording the file metadata used for change detection.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTimetable, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTimetable, err)
	}
	snap, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoTimetable, path, err)
	}
	snap.Path = path
	snap.ModTime = st.ModTime()
	snap.Size = st.Size()
	return snap, nil
}

// Changed reports whether the file backing the snapshot differs from when it was loaded.
func (s *Snapshot) Changed() (bool, error) {
	if s.Path == "" {
		return false, nil
	}
	st, err := os.Stat(s.Path)
	if err != nil {
		return false, err
	}
	return !st.ModTime().Equal(s.ModTime) || st.Size() != s.Size, nil
}

// EarliestTrips returns, for each destination served by the station, the earliest trip departing
// at or after the given time. Destinations keep the order in which they first appear in the file.
func (s *Snapshot) EarliestTrips(after Clock) []Trip {
	if s == nil {
		return nil
	}
	best := make(map[string]int)
	var order []string
	for i, t := range s.Trips {
		if t.Departure < after {
			continue
		}
		j, ok := best[t.Destination]
		if !ok {
			best[t.Destination] = i
			order = append(order, t.Destination)
			continue
		}
		if t.Departure < s.Trips[j].Departure {
			best[t.Destination] = i
		}
	}
	trips := make([]Trip, 0, len(order))
	for _, dst := range order {
		trips = append(trips, s.Trips[best[dst]])
	}
	return trips
}

// Destinations lists every station reachable directly from this one.
func (s *Snapshot) Destinations() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, t := range s.Trips {
		if _, ok := seen[t.Destination]; ok {
			continue
		}
		seen[t.Destination] = struct{}{}
		out = append(out, t.Destination)
	}
	return out
}

// TripsTo filters trips down to those arriving at the given station.
func TripsTo(trips []Trip, station string) []Trip {
	var out []Trip
	for _, t := range trips {
		if t.Destination == station {
			out = append(out, t)
		}
	}
	return out
}
