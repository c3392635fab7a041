package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enrolab/enrolab/tests/mocks"
)

func newWebhookRouter(t *testing.T) (*mocks.RecordingBroadcaster, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &mocks.RecordingBroadcaster{}
	handler := NewWebhookHandler(b, zap.NewNop())

	router := gin.New()
	router.POST("/events/webhook", handler.HandlePost)
	router.OPTIONS("/events/webhook", handler.HandleOptions)
	return b, router
}

func postWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhook_FlatEnvelope(t *testing.T) {
	// ARRANGE
	b, router := newWebhookRouter(t)
	eventID := uuid.New()

	body := `{
		"eventId": "` + eventID.String() + `",
		"eventType": "ProspectCreated",
		"schemaVersion": "1.0",
		"occurredAt": "2026-08-29T10:00:00Z",
		"producer": "external-crm",
		"subject": "prospect/p-1",
		"data": {"name": "Ana"}
	}`

	// ACT
	w := postWebhook(router, body)

	// ASSERT
	assert.Equal(t, http.StatusOK, w.Code)
	got := b.Broadcasted()
	require.Len(t, got, 1)
	assert.Equal(t, eventID, got[0].EventID)
	assert.Equal(t, "ProspectCreated", got[0].EventType)
	assert.Equal(t, "prospect/p-1", got[0].Subject)
}

func TestWebhook_FlatEnvelopeDefaultsIdentity(t *testing.T) {
	// Sin eventId ni occurredAt: el receiver los genera.
	b, router := newWebhookRouter(t)

	w := postWebhook(router, `{"eventType": "StudentUpdated", "subject": "student/s-1", "data": {}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	got := b.Broadcasted()
	require.Len(t, got, 1)
	assert.NotEqual(t, uuid.Nil, got[0].EventID)
	assert.False(t, got[0].OccurredAt.IsZero())
}

func TestWebhook_FlatEnvelopeMissingEventType(t *testing.T) {
	b, router := newWebhookRouter(t)

	w := postWebhook(router, `{"subject": "prospect/p-1", "data": {}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, b.Broadcasted())
}

func TestWebhook_ProviderBatch(t *testing.T) {
	// ARRANGE: array envuelto con dos eventos del proveedor.
	b, router := newWebhookRouter(t)
	idA := uuid.NewString()
	idB := uuid.NewString()

	body := `[
		{"eventId": "` + idA + `", "eventType": "ProspectCreated", "subject": "prospect/p-1", "eventTime": "2026-08-29T10:00:00Z", "data": {"name": "Ana"}},
		{"eventId": "` + idB + `", "eventType": "ProspectDeleted", "subject": "prospect/p-2", "eventTime": "2026-08-29T10:01:00Z", "data": {"id": "p-2"}}
	]`

	// ACT
	w := postWebhook(router, body)

	// ASSERT
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp["count"])

	got := b.Broadcasted()
	require.Len(t, got, 2)
	assert.Equal(t, idA, got[0].EventID.String())
	assert.Equal(t, "ProspectDeleted", got[1].EventType)
}

func TestWebhook_SubscriptionValidationHandshake(t *testing.T) {
	// ARRANGE: el handshake del proveedor pide eco del validationCode.
	b, router := newWebhookRouter(t)

	body := `[{
		"eventType": "SubscriptionValidationEvent",
		"data": {"validationCode": "abc-123"}
	}]`

	// ACT
	w := postWebhook(router, body)

	// ASSERT: se responde el código y no se difunde nada.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"validationResponse": "abc-123"}`, w.Body.String())
	assert.Empty(t, b.Broadcasted())
}

func TestWebhook_ValidationEventWithoutCode(t *testing.T) {
	_, router := newWebhookRouter(t)

	w := postWebhook(router, `[{"eventType": "SubscriptionValidationEvent", "data": {}}]`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_EmptyBody(t *testing.T) {
	_, router := newWebhookRouter(t)

	w := postWebhook(router, "  ")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_MalformedJSON(t *testing.T) {
	_, router := newWebhookRouter(t)

	assert.Equal(t, http.StatusBadRequest, postWebhook(router, `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postWebhook(router, `[{not json`).Code)
}

func TestWebhook_OptionsHandshake(t *testing.T) {
	_, router := newWebhookRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/events/webhook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POST, OPTIONS", w.Header().Get("Allow"))
}
