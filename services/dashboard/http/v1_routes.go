package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aerodelay/flight-dashboard/internal/flights"
)

const defaultHistoryLimit = 20

// registerV1Routes sets up the JSON mirrors of the two views.
// Groups: /api/v1/weather, /api/v1/live
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	v1.GET("/weather", s.handleV1Weather)

	live := v1.Group("/live")
	{
		live.GET("", s.handleV1Live)
		live.GET("/history", s.handleV1LiveHistory)
	}
}

// handleV1Weather returns the weather delay view for a selection
// GET /api/v1/weather?airline=...&month=...
func (s *Server) handleV1Weather(c *gin.Context) {
	view, ok := s.weatherView(c)
	if !ok {
		return
	}

	meta := gin.H{"rows": view.Filtered.Len()}
	if at, ok := s.deps.Weather.LoadedAt(); ok {
		meta["loaded_at"] = at.UTC()
	}
	c.JSON(http.StatusOK, gin.H{"data": view, "meta": meta})
}

// handleV1Live returns the live flight view
// GET /api/v1/live?flight=...
func (s *Server) handleV1Live(c *gin.Context) {
	live, err := s.loadLive(c)
	if err != nil {
		le := classify(err)
		c.JSON(le.Status, gin.H{"error": le.Message})
		return
	}

	meta := gin.H{"flights": live.Len()}
	if at, ok := s.deps.Live.LoadedAt(); ok {
		meta["loaded_at"] = at.UTC()
	}
	c.JSON(http.StatusOK, gin.H{
		"data": flights.Build(live, c.Query("flight")),
		"meta": meta,
	})
}

// handleV1LiveHistory lists archived live fetches, newest first
// GET /api/v1/live/history?limit=20
func (s *Server) handleV1LiveHistory(c *gin.Context) {
	if s.deps.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot archive not configured"})
		return
	}

	limit := defaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	snapshots, err := s.deps.Archive.ListSnapshots(ctx, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": snapshots,
		"meta": gin.H{"count": len(snapshots)},
	})
}
