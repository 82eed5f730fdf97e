package delays

import (
	"io"
	"sort"

	"github.com/aerodelay/flight-dashboard/internal/table"
)

const (
	// WeatherReason is the only DelayReason the view considers.
	WeatherReason = "Weather"
	// ExportFileName is the download name of the filtered CSV.
	ExportFileName = "weather_delays.csv"

	topOrigins = 10
)

// Selection is the state of the Airline and Month multi-selects. A nil slice
// selects every value; a non-nil empty slice selects none.
type Selection struct {
	Airlines []string
	Months   []int
}

// MonthCount is the number of filtered rows in one calendar month.
type MonthCount struct {
	Month int `json:"month"`
	N     int `json:"count"`
}

// Options are the values offered by the two multi-selects.
type Options struct {
	Airlines []string `json:"airlines"`
	Months   []int    `json:"months"`
}

// Summary is everything the Weather Delay view renders.
type Summary struct {
	Filtered   *table.Table      `json:"filtered"`
	ByAirline  []table.Count     `json:"by_airline"`
	ByMonth    []MonthCount      `json:"by_month"`
	AvgDelay   []table.GroupStat `json:"avg_departure_delay"`
	TopOrigins []table.Count     `json:"top_origins"`
}

// WeatherOnly keeps the rows whose DelayReason is Weather.
func WeatherOnly(t *table.Table) *table.Table {
	return t.Where(ColDelayReason, func(v any) bool { return v == WeatherReason })
}

// AvailableOptions lists the airlines in first-seen order and the months in
// ascending order present in the weather-only table.
func AvailableOptions(weather *table.Table) Options {
	opts := Options{Airlines: []string{}, Months: []int{}}
	for _, v := range weather.Distinct(ColAirline) {
		opts.Airlines = append(opts.Airlines, table.Format(v))
	}
	for _, v := range weather.Distinct(ColMonth) {
		if m, ok := v.(int); ok {
			opts.Months = append(opts.Months, m)
		}
	}
	sort.Ints(opts.Months)
	return opts
}

// Apply narrows the weather-only table to rows whose Airline and Month are
// both selected. Row order is preserved.
func Apply(weather *table.Table, sel Selection) *table.Table {
	var airlines map[string]bool
	if sel.Airlines != nil {
		airlines = make(map[string]bool, len(sel.Airlines))
		for _, a := range sel.Airlines {
			airlines[a] = true
		}
	}
	var months map[int]bool
	if sel.Months != nil {
		months = make(map[int]bool, len(sel.Months))
		for _, m := range sel.Months {
			months[m] = true
		}
	}

	return weather.Filter(func(i int) bool {
		if airlines != nil && !airlines[table.Format(weather.Get(i, ColAirline))] {
			return false
		}
		if months != nil {
			m, ok := weather.Get(i, ColMonth).(int)
			if !ok || !months[m] {
				return false
			}
		}
		return true
	})
}

// Summarize computes the view aggregates over a filtered table.
func Summarize(filtered *table.Table) Summary {
	byMonth := make([]MonthCount, 0)
	for _, c := range filtered.ValueCounts(ColMonth) {
		if m, ok := c.Value.(int); ok {
			byMonth = append(byMonth, MonthCount{Month: m, N: c.N})
		}
	}
	sort.Slice(byMonth, func(a, b int) bool { return byMonth[a].Month < byMonth[b].Month })

	return Summary{
		Filtered:   filtered,
		ByAirline:  filtered.ValueCounts(ColAirline),
		ByMonth:    byMonth,
		AvgDelay:   filtered.GroupMean(ColAirline, ColDepartureDelay),
		TopOrigins: table.Head(filtered.ValueCounts(ColOriginAirport), topOrigins),
	}
}

// View is the whole Weather Delay Analysis page for one selection.
type View struct {
	Options   Options   `json:"options"`
	Selection Selection `json:"-"`
	Summary
}

// Build runs the full pipeline: weather-only, selection, aggregates.
func Build(source *table.Table, sel Selection) View {
	weather := WeatherOnly(source)
	return View{
		Options:   AvailableOptions(weather),
		Selection: sel,
		Summary:   Summarize(Apply(weather, sel)),
	}
}

// Export writes the filtered table as the downloadable CSV.
func Export(w io.Writer, filtered *table.Table) error {
	return filtered.WriteCSV(w)
}
