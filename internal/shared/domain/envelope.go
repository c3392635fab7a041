package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion actual de los sobres de eventos. Evolución aditiva:
// los consumidores deben tolerar campos nuevos sin romperse.
const SchemaVersion = "1.0"

// EventEnvelope es el registro inmutable de un hecho de dominio.
// Una vez persistido, ni EventID ni Data se mutan jamás; solo cambia
// el estado de publicación en la fila de outbox que lo acompaña.
type EventEnvelope struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"` // ej. "ProspectCreated"
	SchemaVersion string          `json:"schemaVersion"`
	OccurredAt    time.Time       `json:"occurredAt"` // UTC
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Subject       string          `json:"subject"` // "{entity-type}/{entity-id}"
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope construye un sobre nuevo serializando el payload específico.
// Si el payload no es serializable devolvemos error: una escritura de
// dominio nunca debe completarse perdiendo su evento en silencio.
func NewEnvelope(eventType, producer, subject string, data interface{}) (EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("failed to marshal envelope data: %w", err)
	}

	return EventEnvelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		Subject:       subject,
		Data:          payload,
	}, nil
}

// PartitionKey devuelve la clave de partición para el broker.
// Usamos el subject para garantizar FIFO por agregado.
func (e EventEnvelope) PartitionKey() string {
	return e.Subject
}

// DecodeEnvelope deserializa y valida un sobre recibido de la outbox o del
// broker. Un payload que no pasa esta validación es poison: nunca va a
// deserializar bien por muchos reintentos que haga quien lo recibe.
func DecodeEnvelope(payload []byte) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("invalid envelope payload: %w", err)
	}
	if env.EventID == uuid.Nil || env.EventType == "" {
		return EventEnvelope{}, fmt.Errorf("envelope missing identity fields")
	}
	return env, nil
}
