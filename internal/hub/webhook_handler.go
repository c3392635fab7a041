package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// Broadcaster es lo único que el receiver necesita del hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, env sharedDomain.EventEnvelope)
}

// SubscriptionValidationEvent es el handshake del proveedor de pub/sub:
// hay que devolver el validationCode para empezar a recibir tráfico real.
const SubscriptionValidationEvent = "SubscriptionValidationEvent"

// providerEvent es la forma envuelta que entrega el proveedor de pub/sub.
type providerEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Subject   string          `json:"subject"`
	EventTime time.Time       `json:"eventTime"`
	Data      json.RawMessage `json:"data"`
}

type validationData struct {
	ValidationCode string `json:"validationCode"`
}

// WebhookHandler recibe los eventos que alimentan el broadcast del hub.
// Acepta dos formas de payload: el sobre plano (productores en el mismo
// proceso / modo dev) y el array envuelto del proveedor. La distinción se
// hace por la forma del JSON, nunca sondeando propiedades ad hoc.
type WebhookHandler struct {
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewWebhookHandler(b Broadcaster, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{broadcaster: b, log: log}
}

// HandlePost endpoint POST /events/webhook
func (h *WebhookHandler) HandlePost(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	// Unión etiquetada por forma: '[' = lote del proveedor, '{' = sobre plano.
	if trimmed[0] == '[' {
		h.handleProviderBatch(c, trimmed)
		return
	}
	h.handleFlatEnvelope(c, trimmed)
}

// handleFlatEnvelope procesa el POST directo de un sobre.
func (h *WebhookHandler) handleFlatEnvelope(c *gin.Context, body []byte) {
	var env sharedDomain.EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope payload"})
		return
	}
	if env.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventType is required"})
		return
	}
	if env.EventID == uuid.Nil {
		env.EventID = uuid.New()
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}

	h.broadcaster.Broadcast(c.Request.Context(), env)
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "count": 1})
}

// handleProviderBatch procesa el array envuelto del proveedor, incluido el
// handshake de validación de la suscripción.
func (h *WebhookHandler) handleProviderBatch(c *gin.Context, body []byte) {
	var events []providerEvent
	if err := json.Unmarshal(body, &events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider payload"})
		return
	}

	accepted := 0
	for _, pe := range events {
		if pe.EventType == SubscriptionValidationEvent {
			var vd validationData
			if err := json.Unmarshal(pe.Data, &vd); err != nil || vd.ValidationCode == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid validation event"})
				return
			}
			h.log.Info("🤝 Handshake de suscripción respondido")
			c.JSON(http.StatusOK, gin.H{"validationResponse": vd.ValidationCode})
			return
		}

		env := sharedDomain.EventEnvelope{
			EventType:     pe.EventType,
			SchemaVersion: sharedDomain.SchemaVersion,
			Subject:       pe.Subject,
			OccurredAt:    pe.EventTime,
			Data:          pe.Data,
		}
		if id, err := uuid.Parse(pe.EventID); err == nil {
			env.EventID = id
		} else {
			env.EventID = uuid.New()
		}
		if env.OccurredAt.IsZero() {
			env.OccurredAt = time.Now().UTC()
		}

		h.broadcaster.Broadcast(c.Request.Context(), env)
		accepted++
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "count": accepted})
}

// HandleOptions endpoint OPTIONS /events/webhook: prerequisito del proveedor
// antes de entregar tráfico.
func (h *WebhookHandler) HandleOptions(c *gin.Context) {
	c.Header("Allow", "POST, OPTIONS")
	c.Status(http.StatusOK)
}
