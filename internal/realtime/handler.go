package realtime

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

// RegisterRoutes registers the realtime endpoint.
func (t *Tracker) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/realtime", t.HandleRealtime)
}

// HandleRealtime handles GET /api/realtime?siteId=...&timeWindow=minutes
func (t *Tracker) HandleRealtime(c *gin.Context) {
	window := 0
	if raw := c.Query("timeWindow"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			status, body := httperr.Response(httperr.NewValidationError("timeWindow", "must be a positive number of minutes"))
			c.JSON(status, body)
			return
		}
		window = n
	}

	snap, err := t.GetRealtime(c.Request.Context(), c.Query("siteId"), window)
	if err != nil {
		status, body := httperr.Response(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, snap)
}
