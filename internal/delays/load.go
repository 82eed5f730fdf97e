// Package delays loads the historical weather-delay CSV and computes the
// Weather Delay Analysis view from it.
package delays

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aerodelay/flight-dashboard/internal/table"
)

// Column names of the weather delay file.
const (
	ColAirline        = "Airline"
	ColFlightDate     = "FlightDate"
	ColMonth          = "Month"
	ColDelayReason    = "DelayReason"
	ColDepartureDelay = "DepartureDelay"
	ColOriginAirport  = "OriginAirport"
)

var requiredColumns = []string{ColAirline, ColFlightDate, ColDelayReason, ColDepartureDelay, ColOriginAirport}

var (
	ErrFileNotFound = errors.New("weather delay file not found")
	ErrParse        = errors.New("weather delay file unparseable")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

// LoadFile reads the CSV at path. See Parse.
func LoadFile(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads weather delay CSV, coerces FlightDate to a date and
// DepartureDelay to a number, and derives Month from FlightDate.
func Parse(r io.Reader) (*table.Table, error) {
	raw, err := table.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	for _, col := range requiredColumns {
		if !raw.Has(col) {
			return nil, fmt.Errorf("%w: missing column %q", ErrParse, col)
		}
	}

	t, err := raw.Convert(ColFlightDate, parseDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if t, err = t.Convert(ColDepartureDelay, parseDelay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	dateIdx := indexOf(t.Columns(), ColFlightDate)
	return t.Derive(ColMonth, func(row table.Row) any {
		return int(row[dateIdx].(time.Time).Month())
	}), nil
}

func parseDate(v any) (any, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("cannot parse date %q", s)
}

// missingTokens are the cell spellings that mean "no value", matching what
// spreadsheet and dataframe exports write for missing numbers.
var missingTokens = map[string]bool{
	"#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true,
	"N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// parseDelay reads a delay in minutes. Empty cells, missing-value tokens and
// non-finite numbers are null.
func parseDelay(v any) (any, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" || missingTokens[s] {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("cannot parse delay %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return f, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
