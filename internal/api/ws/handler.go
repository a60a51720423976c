package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/api/middleware"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/tracing"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
	"github.com/wavetermdev/waveterm-sub010/internal/transport/wsshell"
)

// Handler upgrades /ws requests and runs one Session per connection.
type Handler struct {
	hub    *hub.Hub
	cfg    wsshell.Config
	tracer *tracing.Tracer
	logger *zap.Logger
}

// NewHandler builds the handler. tracer may be nil.
func NewHandler(h *hub.Hub, tracer *tracing.Tracer, logger *zap.Logger) *Handler {
	wsCfg := h.Config.WS
	return &Handler{
		hub: h,
		cfg: wsshell.Config{
			ReadLimit:    wsCfg.ReadLimit,
			PingInterval: wsCfg.PingInterval.D(),
			ReadWait:     wsCfg.ReadWait.D(),
			WriteWait:    wsCfg.WriteWait.D(),
			ChanSize:     wsCfg.ChanSize,
			CheckOrigin:  middleware.OriginChecker(h.Config.Server.AllowedOrigins),
		},
		tracer: tracer,
		logger: logger,
	}
}

// HandleConnection handles WebSocket upgrade and runs the session until the
// connection closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	clientId := c.Query("clientid")
	if !id.IsUUID(clientId) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clientid"})
		return
	}

	shell, err := wsshell.StartWS(c.Writer, c.Request, h.cfg, h.logger)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("clientid", clientId), zap.Error(err))
		return
	}
	h.hub.Metrics.IncWSConnections()
	defer h.hub.Metrics.DecWSConnections()

	if h.tracer != nil {
		span, _ := h.tracer.StartSpan(c.Request.Context(), "ws.session")
		span.SetTag("clientid", clientId)
		span.SetTag("connid", shell.ConnId)
		defer func() {
			span.Finish()
			h.tracer.Submit(span)
		}()
	}

	h.logger.Info("websocket connected", zap.String("clientid", clientId), zap.String("connid", shell.ConnId))
	session := NewSession(h.hub, clientId, shell)
	session.Run(shell.ReadChan)
	h.logger.Info("websocket closed", zap.String("clientid", clientId), zap.String("connid", shell.ConnId))
}
