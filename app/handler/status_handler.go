package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"boincwatch/internal/jobs"
)

// StatusHandler exposes collector health and job state.
type StatusHandler struct {
	jobsManager *jobs.Manager
	startedAt   time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(jobsManager *jobs.Manager) *StatusHandler {
	return &StatusHandler{
		jobsManager: jobsManager,
		startedAt:   time.Now(),
	}
}

// Health returns liveness information
// GET /healthz
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).String(),
		"started": h.startedAt.UTC(),
	})
}

// Jobs returns the state of every background job
// GET /api/jobs
func (h *StatusHandler) Jobs(c *gin.Context) {
	if h.jobsManager == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []jobs.JobStatus{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobsManager.Statuses()})
}

// TriggerJob runs a job once outside its schedule
// POST /api/jobs/:name/run
func (h *StatusHandler) TriggerJob(c *gin.Context) {
	name := c.Param("name")
	if h.jobsManager == nil || !h.jobsManager.TriggerNow(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + name})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"triggered": name})
}
