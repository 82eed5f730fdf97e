package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aerodelay/flight-dashboard/internal/aviationstack"
	"github.com/aerodelay/flight-dashboard/internal/delays"
	"github.com/aerodelay/flight-dashboard/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxDisplayRows caps the rows rendered into an HTML table. Exports and the
// JSON API always carry the full table.
const maxDisplayRows = 1000

var monthNames = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"monthName": monthName,
	}).ParseFS(templateFS, "templates/*.html")
}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return strconv.Itoa(m)
	}
	return monthNames[m]
}

// gridData is a table pre-formatted for the HTML templates.
type gridData struct {
	Columns   []string
	Rows      [][]string
	Total     int
	Truncated bool
}

func grid(t *table.Table) gridData {
	if t == nil {
		return gridData{}
	}
	g := gridData{Columns: t.Columns(), Total: t.Len()}
	n := t.Len()
	if n > maxDisplayRows {
		n = maxDisplayRows
		g.Truncated = true
	}
	g.Rows = make([][]string, n)
	for i := 0; i < n; i++ {
		row := t.Row(i)
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = table.Format(v)
		}
		g.Rows[i] = cells
	}
	return g
}

// loadError is what a view shows in place of its content when its loader fails.
type loadError struct {
	Status  int
	Message string
}

func classify(err error) loadError {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, aviationstack.ErrMissingAccessKey):
		status = http.StatusServiceUnavailable
	case errors.Is(err, aviationstack.ErrNetwork),
		errors.Is(err, aviationstack.ErrTimeout),
		errors.Is(err, aviationstack.ErrMalformedResponse):
		status = http.StatusBadGateway
	}
	return loadError{Status: status, Message: err.Error()}
}

type weatherPage struct {
	Active   string
	Error    *loadError
	View     delays.View
	Airlines map[string]bool
	Months   map[int]bool
	Table    gridData
	query    url.Values
	LoadedAt time.Time
}

// ChartURL links a chart image to the current selection.
func (p weatherPage) ChartURL(name string) template.URL {
	return template.URL("/weather/charts/" + url.PathEscape(name) + encodeQuery(p.query))
}

// ExportURL links the CSV download to the current selection.
func (p weatherPage) ExportURL() template.URL {
	return template.URL("/weather/export" + encodeQuery(p.query))
}

type livePage struct {
	Active   string
	Error    *loadError
	View     liveView
	LoadedAt time.Time
}

type liveView struct {
	Overview       gridData
	Detail         gridData
	FlightNumbers  []string
	Selected       string
	NoData         bool
	PickerDisabled bool
	HasFlights     bool
}

// selectionQuery encodes sel for chart and export links. The decoded
// selection always filters to the same rows as sel.
func selectionQuery(sel delays.Selection) url.Values {
	q := url.Values{}
	for _, a := range sel.Airlines {
		q.Add("airline", a)
	}
	for _, m := range sel.Months {
		q.Add("month", strconv.Itoa(m))
	}
	if (sel.Airlines != nil && len(sel.Airlines) == 0) || (sel.Months != nil && len(sel.Months) == 0) {
		q.Set("filtered", "1")
	}
	return q
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func selectedSets(sel delays.Selection, opts delays.Options) (map[string]bool, map[int]bool) {
	airlines := make(map[string]bool)
	months := make(map[int]bool)
	if sel.Airlines == nil {
		for _, a := range opts.Airlines {
			airlines[a] = true
		}
	}
	for _, a := range sel.Airlines {
		airlines[a] = true
	}
	if sel.Months == nil {
		for _, m := range opts.Months {
			months[m] = true
		}
	}
	for _, m := range sel.Months {
		months[m] = true
	}
	return airlines, months
}
