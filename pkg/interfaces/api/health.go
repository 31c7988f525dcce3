package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// StatsSource reports stream length and group pending count.
type StatsSource interface {
	Stats(ctx context.Context, group string) (length int64, pending int64, err error)
}

// PoolStats reports a task pool's load.
type PoolStats interface {
	Running() int
	Queued() int
}

// health provides liveness, readiness and stats endpoints for one consumer.
type health struct {
	stream StatsSource
	group  string
	pool   PoolStats
}

// RegisterRoutes registers health check endpoints.
func (h *health) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/healthz", h.healthCheck)
	group.GET("/readyz", h.readinessCheck)
	group.GET("/stats", h.stats)
}

// healthCheck returns OK whenever the process is serving.
func (h *health) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// readinessCheck verifies the stream store answers.
func (h *health) readinessCheck(c *gin.Context) {
	if h.stream != nil {
		if _, _, err := h.stream.Stats(c.Request.Context(), h.group); err != nil {
			klog.V(4).Infof("readiness check failed: stream stats error: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "stream connection failed",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

func (h *health) stats(c *gin.Context) {
	resp := gin.H{}
	if h.pool != nil {
		resp["running"] = h.pool.Running()
		resp["queued"] = h.pool.Queued()
	}
	if h.stream != nil {
		length, pending, err := h.stream.Stats(c.Request.Context(), h.group)
		if err != nil {
			resp["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["length"] = length
		resp["pending"] = pending
	}
	c.JSON(http.StatusOK, resp)
}
