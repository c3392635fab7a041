package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnState modela el ciclo de vida de una conexión:
// Connecting → Open → Closing → Closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

const writeTimeout = 10 * time.Second

// Connection es el estado efímero de un socket abierto. Vive solo mientras
// el socket esté abierto, nunca se persiste, y es propiedad exclusiva de la
// tabla de conexiones del Hub.
type Connection struct {
	ID          uuid.UUID
	UserID      string
	ConnectedAt time.Time

	ws      *websocket.Conn
	writeMu sync.Mutex // gorilla permite un solo writer concurrente

	subMu      sync.RWMutex
	subscribed map[string]struct{} // vacío = recibir todo

	stateMu sync.Mutex
	state   ConnState
}

func newConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		ws:          ws,
		subscribed:  make(map[string]struct{}),
		state:       StateConnecting,
	}
}

// setState registra la transición. Devuelve false si la conexión ya estaba
// más avanzada en el ciclo de vida (las transiciones solo van hacia delante).
func (c *Connection) setState(s ConnState) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if s < c.state {
		return false
	}
	c.state = s
	return true
}

// State devuelve el estado actual.
func (c *Connection) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// wantsEvent decide si esta conexión debe recibir el event_type dado:
// suscripción vacía = todo; si no, solo los tipos del set.
func (c *Connection) wantsEvent(eventType string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subscribed) == 0 {
		return true
	}
	_, ok := c.subscribed[eventType]
	return ok
}

// updateSubscriptions reemplaza el set de tipos suscritos. Una lista vacía
// vuelve al modo "recibir todo".
func (c *Connection) updateSubscriptions(eventTypes []string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.subscribed = make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		if t != "" {
			c.subscribed[t] = struct{}{}
		}
	}

	current := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		current = append(current, t)
	}
	return current
}

// writeJSON serializa writes concurrentes sobre el mismo socket.
func (c *Connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// closeWith envía un close frame y libera el transporte.
func (c *Connection) closeWith(code int, reason string) {
	if !c.setState(StateClosing) {
		return
	}

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()

	c.ws.Close()
	c.setState(StateClosed)
}
