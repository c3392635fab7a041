package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

func testConfig() Config {
	return Config{
		PerUserLimit:      5,
		GlobalLimit:       1000,
		KeepaliveInterval: time.Minute,
	}
}

// newTestServer levanta un servidor de websockets real sobre httptest.
func newTestServer(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHub(cfg, zap.NewNop())
	router := gin.New()
	router.GET("/ws/events", NewWSHandler(h, zap.NewNop()).Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?user_id=" + userID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitForConns(t *testing.T, h *Hub, want int) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if h.Len() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, want, h.Len())
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	// ARRANGE
	h, srv := newTestServer(t, testConfig())
	ws := dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	env, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/p-1", map[string]string{"name": "Ana"})
	require.NoError(t, err)

	// ACT
	h.Broadcast(context.Background(), env)

	// ASSERT
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got sharedDomain.EventEnvelope
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, "ProspectCreated", got.EventType)
}

func TestHub_SubscriptionFiltering(t *testing.T) {
	// ARRANGE: el cliente se suscribe solo a StudentCreated.
	h, srv := newTestServer(t, testConfig())
	ws := dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	require.NoError(t, ws.WriteJSON(map[string][]string{"eventTypes": {"StudentCreated"}}))

	// El ack confirma que la suscripción ya está aplicada.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack subscriptionAck
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, "subscription_updated", ack.Type)
	assert.Equal(t, []string{"StudentCreated"}, ack.EventTypes)

	// ACT: un evento filtrado y uno suscrito.
	filtered, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/p-1", nil)
	require.NoError(t, err)
	wanted, err := sharedDomain.NewEnvelope("StudentCreated", "test-producer", "student/s-1", nil)
	require.NoError(t, err)

	h.Broadcast(context.Background(), filtered)
	h.Broadcast(context.Background(), wanted)

	// ASSERT: lo primero que llega es el evento suscrito.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got sharedDomain.EventEnvelope
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, wanted.EventID, got.EventID)
}

func TestHub_EmptySubscriptionReceivesAll(t *testing.T) {
	c := newConnection("user-1", nil)

	assert.True(t, c.wantsEvent("ProspectCreated"))
	assert.True(t, c.wantsEvent("anything"))

	c.updateSubscriptions([]string{"StudentDeleted"})
	assert.True(t, c.wantsEvent("StudentDeleted"))
	assert.False(t, c.wantsEvent("ProspectCreated"))

	// Vaciar la lista vuelve al modo "recibir todo".
	c.updateSubscriptions(nil)
	assert.True(t, c.wantsEvent("ProspectCreated"))
}

func TestHub_PerUserLimitRejected(t *testing.T) {
	// ARRANGE: tope de 2 conexiones por usuario.
	cfg := testConfig()
	cfg.PerUserLimit = 2
	h, srv := newTestServer(t, cfg)

	dial(t, srv, "user-1")
	dial(t, srv, "user-1")
	waitForConns(t, h, 2)

	// ACT: la tercera conexión del mismo usuario recibe close de policy violation.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?user_id=user-1"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()

	// ASSERT
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Equal(t, 2, h.Len())

	// Otro usuario sigue entrando.
	dial(t, srv, "user-2")
	waitForConns(t, h, 3)
}

func TestHub_GlobalLimitRejected(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalLimit = 1
	h, srv := newTestServer(t, cfg)

	dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?user_id=user-2"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()

	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestHub_MissingUserIDRejected(t *testing.T) {
	_, srv := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/ws/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_MalformedClientMessageIgnored(t *testing.T) {
	// ARRANGE
	h, srv := newTestServer(t, testConfig())
	ws := dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	// ACT: basura que no es JSON, la conexión debe sobrevivir.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/p-1", nil)
	require.NoError(t, err)
	h.Broadcast(context.Background(), env)

	// ASSERT
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got sharedDomain.EventEnvelope
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, 1, h.Len())
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	h, srv := newTestServer(t, testConfig())
	ws := dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ws.Close()

	waitForConns(t, h, 0)
}

func TestHub_ShutdownClosesAll(t *testing.T) {
	h, srv := newTestServer(t, testConfig())
	ws := dial(t, srv, "user-1")
	waitForConns(t, h, 1)

	h.Shutdown(context.Background())

	assert.Equal(t, 0, h.Len())

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestConnection_StateTransitionsForwardOnly(t *testing.T) {
	c := newConnection("user-1", nil)
	assert.Equal(t, StateConnecting, c.State())

	assert.True(t, c.setState(StateOpen))
	assert.True(t, c.setState(StateClosing))
	// Retroceder no está permitido.
	assert.False(t, c.setState(StateOpen))
	assert.Equal(t, StateClosing, c.State())

	assert.True(t, c.setState(StateClosed))
	assert.Equal(t, StateClosed, c.State())
}

func TestHub_PingFrameShape(t *testing.T) {
	data, err := json.Marshal(pingFrame{Type: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}

func TestHub_KeepalivePingsAndRemovesDeadConnections(t *testing.T) {
	// ARRANGE: servidor que registra el socket sin read loop, para que sea
	// el keepalive quien detecte el transporte caído.
	cfg := testConfig()
	cfg.KeepaliveInterval = 30 * time.Millisecond
	h := NewHub(cfg, zap.NewNop())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := h.Register("user-1", ws); err != nil {
			ws.Close()
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.StartKeepalive(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	waitForConns(t, h, 1)

	// ASSERT: el ping llega por el socket con la forma acordada.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ping pingFrame
	require.NoError(t, ws.ReadJSON(&ping))
	assert.Equal(t, "ping", ping.Type)

	// ACT: el cliente muere sin close frame; el siguiente ping debe fallar
	// y el hub retirar la conexión.
	ws.Close()

	require.Eventually(t, func() bool { return h.Len() == 0 }, 3*time.Second, 20*time.Millisecond)
}
