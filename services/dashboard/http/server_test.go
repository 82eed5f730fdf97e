package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodelay/flight-dashboard/internal/archive"
	"github.com/aerodelay/flight-dashboard/internal/aviationstack"
	"github.com/aerodelay/flight-dashboard/internal/config"
	"github.com/aerodelay/flight-dashboard/internal/delays"
	"github.com/aerodelay/flight-dashboard/internal/memo"
	"github.com/aerodelay/flight-dashboard/internal/table"
	"github.com/aerodelay/flight-dashboard/pkg/logger"
)

const weatherCSV = `Airline,FlightDate,DelayReason,DepartureDelay,OriginAirport
A,2024-01-05,Weather,30,JFK
B,2024-02-10,Weather,10,LAX
A,2024-02-11,Carrier,50,JFK
B,2024-01-20,Weather,,SFO
`

const liveJSON = `{"data": [
	{"flight_status": "active", "departure": {"iata": "SFO", "scheduled": "2024-05-01T04:20:00+00:00"}, "arrival": {"iata": "JFK"}, "airline": {"name": "United"}, "flight": {"number": "1004"}},
	{"flight_status": "scheduled", "departure": {"iata": "LAX"}, "arrival": {"iata": "ORD"}, "airline": {"name": "Delta"}, "flight": {"number": "88"}}
]}`

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	table  *table.Table
	err    error
	calls  int
	resets int
}

func (f *fakeSource) Get(context.Context) (*table.Table, error) {
	f.calls++
	return f.table, f.err
}

func (f *fakeSource) Reset() { f.resets++ }

func (f *fakeSource) LoadedAt() (time.Time, bool) {
	return time.Time{}, false
}

type fakeArchive struct {
	snapshots []archive.Snapshot
	limit     int
}

func (f *fakeArchive) ListSnapshots(_ context.Context, limit int) ([]archive.Snapshot, error) {
	f.limit = limit
	return f.snapshots, nil
}

func weatherSource(t *testing.T) *fakeSource {
	t.Helper()
	tbl, err := delays.Parse(strings.NewReader(weatherCSV))
	require.NoError(t, err)
	return &fakeSource{table: tbl}
}

func liveSource(t *testing.T, body string) *fakeSource {
	t.Helper()
	tbl, err := aviationstack.Decode([]byte(body))
	require.NoError(t, err)
	return &fakeSource{table: tbl}
}

func newTestServer(t *testing.T, cfg config.Config, deps Deps) *Server {
	t.Helper()
	cfg.RequestTimeout = time.Second
	return New(cfg, deps, logger.Nop())
}

func do(s *Server, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsToWeather(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/weather", rec.Header().Get("Location"))
}

func TestHealthzAndRequestID(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(s, http.MethodGet, "/healthz", "X-Request-ID", "abc")
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestWeatherPageDefaultSelectsEverything(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="A" selected>A</option>`)
	assert.Contains(t, body, `<option value="B" selected>B</option>`)
	assert.Contains(t, body, `<option value="1" selected>Jan</option>`)
	assert.Contains(t, body, "SFO")
	assert.NotContains(t, body, "Carrier")
}

func TestWeatherPageSubmittedEmptySelection(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather?filtered=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="A">A</option>`)
	assert.NotContains(t, body, "JFK")
	assert.Contains(t, body, "/weather/export?filtered=1")
}

func TestWeatherPageRejectsBadMonth(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather?month=13")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid month")
}

func TestWeatherExport(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather/export?airline=A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="weather_delays.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Equal(t,
		"Airline,FlightDate,DelayReason,DepartureDelay,OriginAirport,Month\n"+
			"A,2024-01-05,Weather,30,JFK,1\n",
		rec.Body.String())
}

func TestWeatherExportEmptySelectionIsHeaderOnly(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather/export?filtered=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Airline,FlightDate,DelayReason,DepartureDelay,OriginAirport,Month\n", rec.Body.String())
}

func TestWeatherCharts(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	for _, name := range []string{"by-airline", "by-month", "avg-delay", "origins"} {
		t.Run(name, func(t *testing.T) {
			rec := do(s, http.MethodGet, "/weather/charts/"+name+"?month=1")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), "<svg")
		})
	}

	rec := do(s, http.MethodGet, "/weather/charts/pie")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeatherFileErrorIsInternal(t *testing.T) {
	weather := &fakeSource{err: fmt.Errorf("%w: flight_weather_data.csv", delays.ErrFileNotFound)}
	s := newTestServer(t, config.Config{}, Deps{Weather: weather, Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/weather")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not load weather delay data")

	rec = do(s, http.MethodGet, "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLivePage(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/live")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Live Status for Flight 1004")
	assert.Contains(t, body, `<option value="1004" selected>1004</option>`)
	assert.Contains(t, body, "2024-05-01")
	assert.NotContains(t, body, "No data found for this flight.")

	rec = do(s, http.MethodGet, "/live?flight=88")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Live Status for Flight 88")

	rec = do(s, http.MethodGet, "/live?flight=9999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No data found for this flight.")
}

func TestLivePageWithoutFlightNumbers(t *testing.T) {
	live := liveSource(t, `{"data": [{"flight_status": "active", "flight": {"number": null}}]}`)
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: live})

	rec := do(s, http.MethodGet, "/live")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<select name="flight" onchange="this.form.submit()" disabled>`)
	assert.Contains(t, body, "No data found for this flight.")
}

func TestLiveFailureLeavesWeatherWorking(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"network":     {fmt.Errorf("%w: connection refused", aviationstack.ErrNetwork), http.StatusBadGateway},
		"timeout":     {aviationstack.ErrTimeout, http.StatusBadGateway},
		"malformed":   {fmt.Errorf("%w: data is not an array", aviationstack.ErrMalformedResponse), http.StatusBadGateway},
		"missing key": {aviationstack.ErrMissingAccessKey, http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			live := &fakeSource{err: tc.err}
			s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: live})

			rec := do(s, http.MethodGet, "/live")
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), "Could not load live flights")

			rec = do(s, http.MethodGet, "/api/v1/live")
			assert.Equal(t, tc.status, rec.Code)

			rec = do(s, http.MethodGet, "/weather")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestLiveCharts(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	for _, name := range []string{"status", "departures"} {
		rec := do(s, http.MethodGet, "/live/charts/"+name)
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "<svg", name)
	}
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/live/charts/pie").Code)
}

func TestLiveReloadRefetches(t *testing.T) {
	var calls atomic.Int32
	live := memo.New(func(context.Context) (*table.Table, error) {
		if calls.Add(1) == 1 {
			return nil, aviationstack.ErrTimeout
		}
		return aviationstack.Decode([]byte(liveJSON))
	})
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: live})

	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/live").Code)
	assert.Equal(t, int32(2), calls.Load(), "successes are cached")

	rec := do(s, http.MethodPost, "/live/reload")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/live", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/live").Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSwitchingViewsDoesNotRefetch(t *testing.T) {
	weather := weatherSource(t)
	var calls atomic.Int32
	live := memo.New(func(context.Context) (*table.Table, error) {
		calls.Add(1)
		return aviationstack.Decode([]byte(liveJSON))
	})
	s := newTestServer(t, config.Config{}, Deps{Weather: weather, Live: live})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/live").Code)
		require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/weather").Code)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestV1Weather(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/api/v1/weather?airline=B")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))

	var resp struct {
		Data struct {
			Options   delays.Options      `json:"options"`
			ByAirline []table.Count       `json:"by_airline"`
			ByMonth   []delays.MonthCount `json:"by_month"`
			AvgDelay  []struct {
				Label string  `json:"label"`
				Mean  float64 `json:"mean"`
			} `json:"avg_departure_delay"`
		} `json:"data"`
		Meta struct {
			Rows int `json:"rows"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, []string{"A", "B"}, resp.Data.Options.Airlines)
	assert.Equal(t, []int{1, 2}, resp.Data.Options.Months)
	assert.Equal(t, 2, resp.Meta.Rows)
	require.Len(t, resp.Data.ByAirline, 1)
	assert.Equal(t, "B", resp.Data.ByAirline[0].Label)
	assert.Equal(t, 2, resp.Data.ByAirline[0].N)
	require.Len(t, resp.Data.AvgDelay, 1)
	assert.InDelta(t, 10.0, resp.Data.AvgDelay[0].Mean, 1e-9)
	assert.Equal(t, []delays.MonthCount{{Month: 1, N: 1}, {Month: 2, N: 1}}, resp.Data.ByMonth)
}

func TestV1Live(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/api/v1/live?flight=88")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			FlightNumbers []string `json:"flight_numbers"`
			Selected      string   `json:"selected"`
			NoData        bool     `json:"no_data"`
		} `json:"data"`
		Meta struct {
			Flights int `json:"flights"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"1004", "88"}, resp.Data.FlightNumbers)
	assert.Equal(t, "88", resp.Data.Selected)
	assert.False(t, resp.Data.NoData)
	assert.Equal(t, 2, resp.Meta.Flights)
}

func TestV1LiveHistory(t *testing.T) {
	t.Run("no archive", func(t *testing.T) {
		s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})
		assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/api/v1/live/history").Code)
	})

	t.Run("archive", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)
		store := &fakeArchive{snapshots: []archive.Snapshot{
			{RetrievedAt: at, Flights: 2, StatusCounts: map[string]int{"active": 1, "scheduled": 1}},
		}}
		s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON), Archive: store})

		rec := do(s, http.MethodGet, "/api/v1/live/history?limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, store.limit)
		assert.JSONEq(t, `{
			"data": [{"retrieved_at": "2024-05-01T05:00:00Z", "flights": 2, "status_counts": {"active": 1, "scheduled": 1}}],
			"meta": {"count": 1}
		}`, rec.Body.String())

		assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/live/history?limit=0").Code)
	})
}

func TestBearerTokenGuardsAPIOnly(t *testing.T) {
	s := newTestServer(t, config.Config{BearerToken: "secret"}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/weather").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/weather", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/weather", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/weather").Code)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, classify(errors.New("disk")).Status)
	assert.Equal(t, http.StatusInternalServerError, classify(fmt.Errorf("x: %w", delays.ErrParse)).Status)
	assert.Equal(t, http.StatusBadGateway, classify(fmt.Errorf("x: %w", aviationstack.ErrNetwork)).Status)
}

func TestV1WeatherWithMissingAndNonFiniteDelays(t *testing.T) {
	tbl, err := delays.Parse(strings.NewReader(`Airline,FlightDate,DelayReason,DepartureDelay,OriginAirport
A,2024-01-05,Weather,NaN,JFK
A,2024-01-06,Weather,NA,JFK
A,2024-01-07,Weather,Inf,JFK
A,2024-01-08,Weather,-12,JFK
`))
	require.NoError(t, err)
	s := newTestServer(t, config.Config{}, Deps{Weather: &fakeSource{table: tbl}, Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/api/v1/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())

	var resp struct {
		Data struct {
			AvgDelay []struct {
				Label string  `json:"label"`
				Mean  float64 `json:"mean"`
				N     int     `json:"count"`
			} `json:"avg_departure_delay"`
		} `json:"data"`
		Meta struct {
			Rows int `json:"rows"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Meta.Rows)
	require.Len(t, resp.Data.AvgDelay, 1)
	assert.Equal(t, -12.0, resp.Data.AvgDelay[0].Mean)
	assert.Equal(t, 1, resp.Data.AvgDelay[0].N)

	rec = do(s, http.MethodGet, "/weather/charts/avg-delay")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerChallenge(t *testing.T) {
	s := newTestServer(t, config.Config{BearerToken: "secret"}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodGet, "/api/v1/live")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = do(s, http.MethodGet, "/api/v1/live", "Authorization", "Bearer wrong")
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/live", "Authorization", "bearer secret").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})

	rec := do(s, http.MethodOptions, "/api/v1/weather")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = do(s, http.MethodGet, "/api/v1/weather")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestServeStopsOnCancel(t *testing.T) {
	s := newTestServer(t, config.Config{}, Deps{Weather: weatherSource(t), Live: liveSource(t, liveJSON)})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
