package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/motorscan/motorscan/internal/registry"
)

type scrapeRequest struct {
	MaxPages int `json:"max_pages"`
}

func statusURL(runID string) string {
	return "/api/v1/scrape/status/" + runID
}

// startScrape admits a new run. 202 on admission, 409 while another run
// holds the slot. An absent or zero max_pages falls back to the
// configured default.
func (s *Server) startScrape(c *gin.Context) {
	var req scrapeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if req.MaxPages < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_pages must be a positive integer"})
		return
	}

	snap, err := s.controller.Start(req.MaxPages)
	if err != nil {
		var busy *registry.AlreadyRunningError
		if errors.As(err, &busy) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "a scrape run is already active",
				"run_id":     busy.RunID,
				"status_url": statusURL(busy.RunID),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": snap.RunID,
		"status": snap.Status,
		"details": gin.H{
			"started_at": snap.StartedAt,
			"max_pages":  snap.MaxPages,
			"status_url": statusURL(snap.RunID),
		},
	})
}

// runStatus returns the point-in-time snapshot pollers consume.
func (s *Server) runStatus(c *gin.Context) {
	runID := c.Param("run_id")

	snap, err := s.controller.Status(runID)
	if err != nil {
		if registry.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": runID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// listRuns returns every run retained by the registry, newest first.
func (s *Server) listRuns(c *gin.Context) {
	runs := s.controller.List()
	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"runs":  runs,
	})
}

// cancelRun requests cancellation. The flag is advisory; the run stops
// at its next page boundary.
func (s *Server) cancelRun(c *gin.Context) {
	runID := c.Param("run_id")

	if err := s.controller.Cancel(runID); err != nil {
		switch {
		case registry.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "run_id": runID})
		case registry.IsAlreadyTerminal(err):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": runID})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": "cancelling",
	})
}

// health reports liveness, version, uptime, and the active run if any.
func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"version": s.config.Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	}
	if active, ok := s.controller.Active(); ok {
		resp["active_run"] = gin.H{
			"run_id":     active.RunID,
			"status":     active.Status,
			"pages_done": active.PagesDone,
			"progress":   active.Progress,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// metricsSnapshot dumps the collector counters.
func (s *Server) metricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}
