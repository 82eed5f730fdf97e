package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aerodelay/flight-dashboard/internal/charts"
	"github.com/aerodelay/flight-dashboard/internal/delays"
	"github.com/aerodelay/flight-dashboard/internal/table"
)

const weatherLoadTimeout = 30 * time.Second

// parseSelection reads the airline and month multi-selects. Without
// filtered=1 an absent parameter selects everything; with it, nothing.
func parseSelection(c *gin.Context) (delays.Selection, error) {
	submitted := c.Query("filtered") == "1"

	var sel delays.Selection
	if airlines, ok := c.GetQueryArray("airline"); ok {
		sel.Airlines = airlines
	} else if submitted {
		sel.Airlines = []string{}
	}

	if raw, ok := c.GetQueryArray("month"); ok {
		sel.Months = make([]int, 0, len(raw))
		for _, v := range raw {
			m, err := strconv.Atoi(v)
			if err != nil || m < 1 || m > 12 {
				return sel, fmt.Errorf("invalid month: %s", v)
			}
			sel.Months = append(sel.Months, m)
		}
	} else if submitted {
		sel.Months = []int{}
	}
	return sel, nil
}

func (s *Server) loadWeather(c *gin.Context) (*table.Table, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), weatherLoadTimeout)
	defer cancel()

	source, err := s.deps.Weather.Get(ctx)
	if err != nil {
		_ = c.Error(err)
		return nil, err
	}
	return source, nil
}

// weatherView loads the source table and builds the view for the request's
// selection. On failure it has already answered the request.
func (s *Server) weatherView(c *gin.Context) (delays.View, bool) {
	sel, err := parseSelection(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return delays.View{}, false
	}
	source, err := s.loadWeather(c)
	if err != nil {
		le := classify(err)
		c.JSON(le.Status, gin.H{"error": le.Message})
		return delays.View{}, false
	}
	return delays.Build(source, sel), true
}

func (s *Server) handleWeatherPage(c *gin.Context) {
	page := weatherPage{Active: "weather"}

	sel, err := parseSelection(c)
	if err != nil {
		page.Error = &loadError{Status: http.StatusBadRequest, Message: err.Error()}
		c.HTML(http.StatusBadRequest, "weather.html", page)
		return
	}

	source, err := s.loadWeather(c)
	if err != nil {
		le := classify(err)
		page.Error = &le
		c.HTML(le.Status, "weather.html", page)
		return
	}

	view := delays.Build(source, sel)
	page.View = view
	page.Airlines, page.Months = selectedSets(sel, view.Options)
	page.Table = grid(view.Filtered)
	page.query = selectionQuery(sel)
	page.LoadedAt, _ = s.deps.Weather.LoadedAt()

	c.HTML(http.StatusOK, "weather.html", page)
}

func (s *Server) handleWeatherExport(c *gin.Context) {
	view, ok := s.weatherView(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := delays.Export(&buf, view.Filtered); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", delays.ExportFileName))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleWeatherChart(c *gin.Context) {
	name := c.Param("name")
	if !weatherCharts[name] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown chart: " + name})
		return
	}

	view, ok := s.weatherView(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	var err error
	switch name {
	case "by-airline":
		err = charts.Bars(&buf, "Weather Delays by Airline", countBars(view.ByAirline))
	case "by-month":
		points := make([]charts.Point, len(view.ByMonth))
		for i, m := range view.ByMonth {
			points[i] = charts.Point{X: float64(m.Month), Y: float64(m.N)}
		}
		err = charts.Line(&buf, "Monthly Weather Delay Trend", "Month", "Delays", 1, 12, charts.MonthTicks(), points)
	case "avg-delay":
		bars := make([]charts.Bar, len(view.AvgDelay))
		for i, g := range view.AvgDelay {
			bars[i] = charts.Bar{Label: g.Label, Value: g.Mean}
		}
		err = charts.Bars(&buf, "Avg Departure Delay (min)", bars)
	case "origins":
		err = charts.HorizontalBars(&buf, "Delay Count by Origin Airport", "Delays", "Origin", countBars(view.TopOrigins))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, charts.ContentType, buf.Bytes())
}

var weatherCharts = map[string]bool{
	"by-airline": true,
	"by-month":   true,
	"avg-delay":  true,
	"origins":    true,
}

func countBars(counts []table.Count) []charts.Bar {
	bars := make([]charts.Bar, len(counts))
	for i, c := range counts {
		bars[i] = charts.Bar{Label: c.Label, Value: float64(c.N)}
	}
	return bars
}
