package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/statestore"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

// Version is reported by the root handler.
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	hub    *hub.Hub
	logger *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(h *hub.Hub, logger *zap.Logger) *Handlers {
	return &Handlers{hub: h, logger: logger}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "wavesrv",
		"version": Version,
	})
}

// statusFor maps the typed errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, statestore.ErrNotFound):
		return http.StatusNotFound
	case errs.IsValidation(err), errs.IsDecode(err), errs.IsProtocol(err):
		return http.StatusBadRequest
	case errs.IsOverflow(err):
		return http.StatusTooManyRequests
	case errs.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}
