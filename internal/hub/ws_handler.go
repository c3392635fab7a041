package hub

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler hace el upgrade de /ws/events y entrega el socket al hub.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(h *Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// La autenticación del origen es responsabilidad del gateway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Handle endpoint GET /ws/events
func (h *WSHandler) Handle(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query param is required"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade fallido: gorilla ya respondió el error HTTP.
		h.log.Warn("Fallo en el upgrade de websocket", zap.Error(err))
		return
	}

	conn, err := h.hub.Register(userID, ws)
	if err != nil {
		// Tope de capacidad: close con policy violation antes de registrar.
		h.log.Warn("Conexión rechazada por límite de capacidad",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		ws.Close()
		return
	}

	// El contexto del request muere al retornar el handler; el ciclo de vida
	// del read loop lo gobierna el propio socket (y Hub.Shutdown).
	go h.hub.ReadLoop(context.Background(), conn)
}
