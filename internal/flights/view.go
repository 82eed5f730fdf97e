// Package flights computes the Live Flight Tracking view from the flattened
// live flight table.
package flights

import (
	"github.com/aerodelay/flight-dashboard/internal/table"
)

const (
	ColAirlineName        = "airline.name"
	ColFlightNumber       = "flight.number"
	ColDepartureIATA      = "departure.iata"
	ColArrivalIATA        = "arrival.iata"
	ColDepartureScheduled = "departure.scheduled"
	ColDepartureEstimated = "departure.estimated"
	ColArrivalScheduled   = "arrival.scheduled"
	ColArrivalEstimated   = "arrival.estimated"
	ColFlightStatus       = "flight_status"

	topDepartures = 10
)

// OverviewColumns is the fixed projection of the live table shown in full.
var OverviewColumns = []string{
	ColAirlineName, ColFlightNumber, ColDepartureIATA, ColArrivalIATA,
	ColDepartureScheduled, ColFlightStatus,
}

// DetailColumns is the projection shown for the selected flight.
var DetailColumns = []string{
	ColAirlineName, ColFlightNumber, ColDepartureIATA, ColArrivalIATA,
	ColDepartureScheduled, ColArrivalScheduled,
	ColDepartureEstimated, ColArrivalEstimated, ColFlightStatus,
}

// FlightNumbers lists the distinct non-null flight numbers in first-seen order.
func FlightNumbers(t *table.Table) []string {
	out := []string{}
	for _, v := range t.Distinct(ColFlightNumber) {
		out = append(out, table.Format(v))
	}
	return out
}

// Overview projects the live table onto OverviewColumns.
func Overview(t *table.Table) *table.Table {
	return t.Select(OverviewColumns...)
}

// StatusCounts counts flights per flight_status, most common first.
func StatusCounts(t *table.Table) []table.Count {
	return t.ValueCounts(ColFlightStatus)
}

// TopDepartures counts flights per departure airport and keeps the n busiest.
func TopDepartures(t *table.Table, n int) []table.Count {
	return table.Head(t.ValueCounts(ColDepartureIATA), n)
}

// Detail returns the rows whose flight number equals number exactly.
func Detail(t *table.Table, number string) *table.Table {
	return t.Where(ColFlightNumber, func(v any) bool {
		return v != nil && table.Format(v) == number
	}).Select(DetailColumns...)
}

// View is the whole Live Flight Tracking page for one flight selection.
type View struct {
	Overview      *table.Table  `json:"overview"`
	StatusCounts  []table.Count `json:"status_counts"`
	TopDepartures []table.Count `json:"top_departures"`
	FlightNumbers []string      `json:"flight_numbers"`
	Selected      string        `json:"selected,omitempty"`
	Detail        *table.Table  `json:"detail,omitempty"`
	// NoData is set when the picker is empty or the selected flight has no rows.
	NoData bool `json:"no_data"`
}

// PickerDisabled reports whether there is nothing to choose from.
func (v View) PickerDisabled() bool { return len(v.FlightNumbers) == 0 }

// Build computes the view. An empty selection defaults to the first flight
// number on offer. A selection that is not in the table yields NoData.
func Build(t *table.Table, selected string) View {
	v := View{
		Overview:      Overview(t),
		StatusCounts:  StatusCounts(t),
		TopDepartures: TopDepartures(t, topDepartures),
		FlightNumbers: FlightNumbers(t),
	}
	if selected == "" && len(v.FlightNumbers) > 0 {
		selected = v.FlightNumbers[0]
	}
	v.Selected = selected
	if selected == "" {
		v.NoData = true
		return v
	}
	v.Detail = Detail(t, selected)
	v.NoData = v.Detail.Len() == 0
	return v
}
