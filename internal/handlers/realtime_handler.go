package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RealtimeHandler upgrades panel clients to a websocket event stream
type RealtimeHandler struct {
	hub      SubscriberRegistry
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new realtime handler. allowedOrigins limits
// the browser origins that may open a stream; empty allows any.
func NewRealtimeHandler(hub SubscriberRegistry, allowedOrigins []string) *RealtimeHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Stream handles GET /api/realtime. It blocks until the client disconnects.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn("Websocket upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	conn := realtime.NewConnection(userID, ws)
	h.hub.Subscribe(userID, conn)
	defer h.hub.Unsubscribe(userID, conn)

	logger.Debug("Realtime client connected",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID()),
	)
	conn.Run()
}
