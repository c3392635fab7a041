package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InboxRecord es el marcador de deduplicación del lado consumidor.
// La presencia de una fila para event_id significa "ya aplicado, saltar".
type InboxRecord struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	ProcessedAt   time.Time `json:"processed_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Subject       string    `json:"subject,omitempty"`
}

// ApplyFn es la mutación del read model que el guard protege. Recibe la
// transacción abierta para que la escritura y el marcador se confirmen juntos.
type ApplyFn func(tx *sql.Tx) error

// InboxGuard hace idempotente la aplicación de eventos bajo redelivery
// at-least-once: el mismo event_id produce exactamente una aplicación.
type InboxGuard interface {
	// TryApply devuelve (true, nil) si applyFn se ejecutó y el marcador se
	// insertó en la misma transacción; (false, nil) si el evento ya estaba
	// aplicado y se saltó sin invocar applyFn.
	TryApply(ctx context.Context, env EventEnvelope, applyFn ApplyFn) (bool, error)
	// PurgeOlderThan elimina marcadores más antiguos que el umbral.
	// Es seguro siempre que la retención supere la ventana de redelivery
	// del broker.
	PurgeOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}
