package alert

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

const (
	defaultTriggerLimit = 50
	maxTriggerLimit     = 500
)

// RegisterRoutes registers the alert endpoints.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/alerts/evaluate", s.HandleEvaluate)
	r.GET("/api/alerts/:id/triggers", s.HandleTriggers)
}

// HandleEvaluate handles POST /api/alerts/evaluate.
// It returns the decision for the supplied definition and records nothing.
func (s *Service) HandleEvaluate(c *gin.Context) {
	var a v1.Alert
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			Error:     "Invalid JSON body",
			ErrorType: httperr.HttpInvalidJsonError,
			Details:   err.Error(),
		})
		return
	}

	res, err := s.evaluator.Evaluate(c.Request.Context(), &a, s.nowFn())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleTriggers handles GET /api/alerts/:id/triggers
func (s *Service) HandleTriggers(c *gin.Context) {
	limit := defaultTriggerLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTriggerLimit {
			writeError(c, httperr.NewValidationError("limit", "must be an integer between 1 and %d", maxTriggerLimit))
			return
		}
		limit = n
	}

	records, err := s.Triggers(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func writeError(c *gin.Context, err error) {
	status, body := httperr.Response(err)
	c.JSON(status, body)
}
