package query

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

// RegisterRoutes registers the stats endpoints.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/stats", s.HandleStats)
	r.GET("/api/stats/compare", s.HandleCompare)
}

// HandleStats handles GET /api/stats
// Query parameters: siteId, period | startDate & endDate, filters (JSON array),
// groupBy, orderBy, limit, offset, metrics (comma separated).
func (s *Service) HandleStats(c *gin.Context) {
	resp, err := s.ExecuteQuery(c.Request.Context(), bindQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCompare handles GET /api/stats/compare
// Takes the stats parameters for the current range. compareStartDate and
// compareEndDate select the baseline; without them the preceding range of
// equal length is used.
func (s *Service) HandleCompare(c *gin.Context) {
	current := bindQuery(c)

	var (
		previous Query
		err      error
	)
	if c.Query("compareStartDate") != "" || c.Query("compareEndDate") != "" {
		previous = current
		previous.Period = ""
		previous.StartDate = c.Query("compareStartDate")
		previous.EndDate = c.Query("compareEndDate")
	} else {
		previous, err = s.PreviousQuery(current)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	resp, err := s.ComparePeriods(c.Request.Context(), current, previous)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// bindQuery reads a Query from URL parameters. Malformed numbers and filters
// are kept on the query and reported with the rest of its validation.
func bindQuery(c *gin.Context) Query {
	q := Query{
		SiteID:    c.Query("siteId"),
		Period:    Period(c.Query("period")),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		GroupBy:   c.Query("groupBy"),
		OrderBy:   c.Query("orderBy"),
	}
	verr := &httperr.ValidationError{}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n == 0 {
			verr.Add("limit", "must be a positive integer")
		} else {
			q.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("offset", "must be a non-negative integer")
		} else {
			q.Offset = n
		}
	}
	if raw, ok := c.GetQuery("metrics"); ok {
		q.Metrics = []string{}
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				q.Metrics = append(q.Metrics, m)
			}
		}
	}
	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filters); err != nil {
			q.Filters = nil
			verr.Add("filters", "must be a JSON array of {dimension, operator, value}")
		}
	}

	q.parseErrs = verr.Fields
	return q
}

// writeError maps service errors onto the shared error body.
// Validation failures on this endpoint carry the invalid_query type.
func writeError(c *gin.Context, err error) {
	status, body := httperr.Response(err)
	if errors.Is(err, httperr.ErrValidation) {
		body.ErrorType = httperr.HttpInvalidQueryError
	}
	c.JSON(status, body)
}
