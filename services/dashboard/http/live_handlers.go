package http

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aerodelay/flight-dashboard/internal/aviationstack"
	"github.com/aerodelay/flight-dashboard/internal/charts"
	"github.com/aerodelay/flight-dashboard/internal/flights"
	"github.com/aerodelay/flight-dashboard/internal/table"
)

const topDepartureAirports = 10

func (s *Server) loadLive(c *gin.Context) (*table.Table, error) {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = aviationstack.DefaultTimeout
	}
	// the client bounds the fetch itself; the margin lets it report a timeout
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout+timeout/2)
	defer cancel()

	live, err := s.deps.Live.Get(ctx)
	if err != nil {
		_ = c.Error(err)
		return nil, err
	}
	return live, nil
}

func (s *Server) handleLivePage(c *gin.Context) {
	page := livePage{Active: "live"}

	live, err := s.loadLive(c)
	if err != nil {
		le := classify(err)
		page.Error = &le
		page.View.PickerDisabled = true
		c.HTML(le.Status, "live.html", page)
		return
	}

	view := flights.Build(live, c.Query("flight"))
	page.View = liveView{
		Overview:       grid(view.Overview),
		Detail:         grid(view.Detail),
		FlightNumbers:  view.FlightNumbers,
		Selected:       view.Selected,
		NoData:         view.NoData,
		PickerDisabled: view.PickerDisabled(),
		HasFlights:     live.Len() > 0,
	}
	page.LoadedAt, _ = s.deps.Live.LoadedAt()

	c.HTML(http.StatusOK, "live.html", page)
}

func (s *Server) handleLiveChart(c *gin.Context) {
	name := c.Param("name")
	if name != "status" && name != "departures" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown chart: " + name})
		return
	}

	live, err := s.loadLive(c)
	if err != nil {
		le := classify(err)
		c.JSON(le.Status, gin.H{"error": le.Message})
		return
	}

	var buf bytes.Buffer
	if name == "status" {
		err = charts.Bars(&buf, "Flight Status Overview", countBars(flights.StatusCounts(live)))
	} else {
		err = charts.HorizontalBars(&buf, "Top 10 Departure Airports", "Flights", "Airport",
			countBars(flights.TopDepartures(live, topDepartureAirports)))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, charts.ContentType, buf.Bytes())
}

// handleLiveReload drops the cached live table so the next view refetches.
func (s *Server) handleLiveReload(c *gin.Context) {
	s.deps.Live.Reset()
	s.log.Info("live flight cache reset")
	c.Redirect(http.StatusSeeOther, "/live")
}
