package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/leadscrape/models"
)

// RunSource provides the current run's status.
type RunSource interface {
	Snapshot() models.RunStatusResponse
}

// Run returns a handler for GET /api/v1/run.
func Run(runs RunSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, runs.Snapshot())
	}
}
