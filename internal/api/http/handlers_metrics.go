package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness plus the counters an operator looks at first.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"remotes":     h.hub.Remotes.NumRemotes(),
		"clients":     h.hub.Models.NumChannels(),
		"pendingrpcs": h.hub.RPC.NumPending(),
		"statestore":  h.hub.States.Stats(),
		"metrics":     h.hub.Metrics.Snapshot(),
	})
}

// MetricsJSON returns the metrics snapshot as JSON.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Metrics.Snapshot())
}
