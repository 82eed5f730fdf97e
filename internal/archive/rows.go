// Package archive stores fetched live flight tables in Postgres so the
// dashboard can show how the live feed looked on earlier fetches.
package archive

import (
	"time"

	"github.com/aerodelay/flight-dashboard/internal/flights"
	"github.com/aerodelay/flight-dashboard/internal/table"
)

// SnapshotRow is one flight of one archived fetch.
type SnapshotRow struct {
	RetrievedAt        time.Time
	Position           int
	FlightNumber       *string
	AirlineName        *string
	DepartureIATA      *string
	ArrivalIATA        *string
	DepartureScheduled *time.Time
	DepartureEstimated *string
	ArrivalScheduled   *string
	ArrivalEstimated   *string
	Status             *string
	Raw                map[string]any
}

// BuildRows converts a flattened live table into archive rows. Position keeps
// the feed order so rows without a flight number stay distinct.
func BuildRows(t *table.Table, retrievedAt time.Time) []SnapshotRow {
	cols := t.Columns()
	rows := make([]SnapshotRow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		raw := make(map[string]any, len(cols))
		for _, c := range cols {
			v := t.Get(i, c)
			if ts, ok := v.(time.Time); ok {
				v = ts.Format(time.RFC3339)
			}
			raw[c] = v
		}

		row := SnapshotRow{
			RetrievedAt:        retrievedAt,
			Position:           i,
			FlightNumber:       text(t.Get(i, flights.ColFlightNumber)),
			AirlineName:        text(t.Get(i, flights.ColAirlineName)),
			DepartureIATA:      text(t.Get(i, flights.ColDepartureIATA)),
			ArrivalIATA:        text(t.Get(i, flights.ColArrivalIATA)),
			DepartureEstimated: text(t.Get(i, flights.ColDepartureEstimated)),
			ArrivalScheduled:   text(t.Get(i, flights.ColArrivalScheduled)),
			ArrivalEstimated:   text(t.Get(i, flights.ColArrivalEstimated)),
			Status:             text(t.Get(i, flights.ColFlightStatus)),
			Raw:                raw,
		}
		if ts, ok := t.Get(i, flights.ColDepartureScheduled).(time.Time); ok {
			ts = ts.UTC()
			row.DepartureScheduled = &ts
		}
		rows = append(rows, row)
	}
	return rows
}

func text(v any) *string {
	if v == nil {
		return nil
	}
	s := table.Format(v)
	return &s
}
