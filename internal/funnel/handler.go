package funnel

import (
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"github.com/pulse-analytics/pulse/internal/query"
)

// evaluateRequest carries a funnel definition and the range to evaluate it over.
// Either Period or StartDate/EndDate is required.
type evaluateRequest struct {
	Funnel    v1.Funnel      `json:"funnel"`
	Period    query.Period   `json:"period,omitempty"`
	StartDate string         `json:"startDate,omitempty"`
	EndDate   string         `json:"endDate,omitempty"`
	Filters   []query.Filter `json:"filters,omitempty"`
}

// RegisterRoutes registers the funnel endpoints.
func (e *Evaluator) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/funnels/evaluate", e.HandleEvaluate)
}

// HandleEvaluate handles POST /api/funnels/evaluate
func (e *Evaluator) HandleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			Error:     "Invalid JSON body",
			ErrorType: httperr.HttpInvalidJsonError,
			Details:   err.Error(),
		})
		return
	}

	from, to, err := e.rows.Range(query.Query{
		SiteID:    req.Funnel.SiteID,
		Period:    req.Period,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := e.Evaluate(c.Request.Context(), req.Funnel, Period{From: from, To: to}, req.Filters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func writeError(c *gin.Context, err error) {
	status, body := httperr.Response(err)
	c.JSON(status, body)
}
