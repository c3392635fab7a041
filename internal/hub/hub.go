package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// Errores de capacidad: se rechaza el handshake, nunca un drop silencioso.
var (
	ErrUserConnLimit   = errors.New("per-user connection limit exceeded")
	ErrGlobalConnLimit = errors.New("global connection limit exceeded")
)

// Config agrupa los límites de recursos del hub.
type Config struct {
	PerUserLimit      int           // conexiones simultáneas por usuario
	GlobalLimit       int           // conexiones simultáneas por proceso
	KeepaliveInterval time.Duration // cadencia del ping
}

// pingFrame es el keepalive en banda: mantiene vivos los intermediarios de
// red sin cerrar conexiones ociosas unilateralmente.
type pingFrame struct {
	Type string `json:"type"`
}

type subscriptionAck struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"eventTypes"`
}

// subscribeMessage es el único mensaje entrante que entendemos.
type subscribeMessage struct {
	EventTypes []string `json:"eventTypes"`
}

// Hub es la tabla de conexiones del proceso: registra sockets, reparte los
// sobres a cada suscriptor y mantiene el keepalive. Es un componente
// inyectable, no estado ambiental: cada tarea que lo necesita lo recibe por
// referencia.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Connection
	byUser map[string]int

	cfg Config
	log *zap.Logger
}

func NewHub(cfg Config, log *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]*Connection),
		byUser: make(map[string]int),
		cfg:    cfg,
		log:    log,
	}
}

// Register da de alta un socket ya upgradeado. Aplica los dos topes antes de
// tocar la tabla; si alguno se supera devuelve error y el handler cierra con
// policy violation.
func (h *Hub) Register(userID string, ws *websocket.Conn) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.conns) >= h.cfg.GlobalLimit {
		return nil, ErrGlobalConnLimit
	}
	if h.byUser[userID] >= h.cfg.PerUserLimit {
		return nil, ErrUserConnLimit
	}

	conn := newConnection(userID, ws)
	conn.setState(StateOpen)
	h.conns[conn.ID] = conn
	h.byUser[userID]++

	h.log.Info("🔌 Conexión registrada",
		zap.String("connection_id", conn.ID.String()),
		zap.String("user_id", userID),
		zap.Int("total", len(h.conns)),
	)
	return conn, nil
}

// unregister retira la conexión de la tabla. Idempotente.
func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; ok {
		delete(h.conns, conn.ID)
		h.byUser[conn.UserID]--
		if h.byUser[conn.UserID] <= 0 {
			delete(h.byUser, conn.UserID)
		}
	}
	h.mu.Unlock()

	h.log.Info("🔌 Conexión cerrada",
		zap.String("connection_id", conn.ID.String()),
		zap.String("user_id", conn.UserID),
	)
}

// Len devuelve el número de conexiones abiertas.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copia las conexiones actuales para iterar sin retener el lock:
// el broadcast nunca bloquea registros nuevos.
func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast envía el sobre en paralelo a cada conexión cuyo filtro lo acepte
// y espera el lote completo: la latencia queda acotada por el envío más
// lento, no por la suma. Los errores por conexión se aíslan.
func (h *Hub) Broadcast(ctx context.Context, env sharedDomain.EventEnvelope) {
	conns := h.snapshot()

	var wg sync.WaitGroup
	for _, conn := range conns {
		if conn.State() != StateOpen || !conn.wantsEvent(env.EventType) {
			continue
		}

		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.writeJSON(env); err != nil {
				h.log.Warn("⚠️ Fallo al enviar a una conexión, el resto sigue",
					zap.String("connection_id", c.ID.String()),
					zap.Error(err),
				)
			}
		}(conn)
	}
	wg.Wait()
}

// StartKeepalive lanza la tarea compartida de ping. No cierra conexiones
// ociosas: un socket mudo pero abierto está permitido.
func (h *Hub) StartKeepalive(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.cfg.KeepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, conn := range h.snapshot() {
					if conn.State() != StateOpen {
						continue
					}
					if err := conn.writeJSON(pingFrame{Type: "ping"}); err != nil {
						// Keepalive fallido: el transporte está roto, lo retiramos.
						conn.closeWith(websocket.CloseGoingAway, "keepalive failed")
						h.unregister(conn)
					}
				}
			}
		}
	}()
}

// ReadLoop procesa los mensajes entrantes de una conexión hasta que el
// cliente cierre o el socket falle. Los mensajes malformados se loguean y se
// ignoran, nunca cierran la conexión.
func (h *Hub) ReadLoop(ctx context.Context, conn *Connection) {
	defer func() {
		conn.closeWith(websocket.CloseNormalClosure, "")
		h.unregister(conn)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			// Close frame del cliente o transporte caído: salida limpia.
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.Warn("Mensaje de cliente malformado, ignorado",
				zap.String("connection_id", conn.ID.String()),
				zap.Error(err),
			)
			continue
		}

		current := conn.updateSubscriptions(msg.EventTypes)
		if err := conn.writeJSON(subscriptionAck{Type: "subscription_updated", EventTypes: current}); err != nil {
			return
		}

		h.log.Info("📡 Suscripción actualizada",
			zap.String("connection_id", conn.ID.String()),
			zap.Strings("event_types", current),
		)
	}
}

// Shutdown cierra todas las conexiones con un close normal y vacía la tabla.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, conn := range h.snapshot() {
		conn.closeWith(websocket.CloseNormalClosure, "server shutting down")
		h.unregister(conn)
	}
	h.log.Info("🛑 Connection hub detenido.")
}
