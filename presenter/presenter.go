// Package presenter renders query results for clients.
package presenter

import (
	"bytes"
	"encoding/json"
	"html/template"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
)

const (
	ContentHTML = "text/html; charset=utf-8"
	ContentJSON = "application/json"
)

// Page is everything shown to a client of a station.
type Page struct {
	Station      string
	Destinations []string
	Now          timetable.Clock
	TripTypes    []string
	// Result is nil when the client has not asked a question yet
	Result *state.Result
	Error  string
}

type errorBody struct {
	Station string `json:"station"`
	Error   string `json:"error"`
}

var page = template.Must(template.New("station").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Station}}</title></head>
<body>
<h1>{{.Station}}</h1>
{{- if .Error}}
<p class="error">{{.Error}}</p>
{{- end}}
{{- with .Result}}
{{- if .Found}}
<h2>{{.Source}} to {{.Destination}} after {{.RequestedTime}}</h2>
<table>
<tr><th>From</th><th>Departs</th><th>Service</th><th>Platform</th><th>Arrives</th><th>At</th></tr>
{{- range .Legs}}
<tr><td>{{.Station}}</td><td>{{.Trip.Departure}}</td><td>{{.Trip.Service}}</td><td>{{.Trip.Platform}}</td><td>{{.Trip.Arrival}}</td><td>{{.Trip.Destination}}</td></tr>
{{- end}}
</table>
{{- else}}
<p class="no-route">No route found from {{.Source}} to {{.Destination}} after {{.RequestedTime}}: {{.Reason}}</p>
{{- end}}
{{- end}}
<form method="get" action="/">
<label>Destination <input name="station" list="destinations"></label>
<datalist id="destinations">{{range .Destinations}}<option value="{{.}}">{{end}}</datalist>
<label>Leaving after <input name="time" type="time" value="{{.Now}}"></label>
<select name="tripType">{{range .TripTypes}}<option>{{.}}</option>{{end}}</select>
<button type="submit">Plan</button>
</form>
</body>
</html>
`))

func NewPage(snap *timetable.Snapshot, station string, now timetable.Clock) Page {
	return Page{
		Station:      station,
		Destinations: snap.Destinations(),
		Now:          now,
		TripTypes:    []string{state.FastestTrip.String()},
	}
}

func HTML(p Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func JSON(p Page) ([]byte, error) {
	if p.Result == nil {
		return json.Marshal(errorBody{Station: p.Station, Error: p.Error})
	}
	return json.Marshal(p.Result)
}

// Render produces the body and content type for the requested format.
func Render(format state.Format, p Page) (string, []byte, error) {
	if format == state.FormatJSON {
		b, err := JSON(p)
		return ContentJSON, b, err
	}
	b, err := HTML(p)
	return ContentHTML, b, err
}
