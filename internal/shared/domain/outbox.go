package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord representa una fila de la tabla outbox: un evento que
// todavía debe publicarse en el broker. Se crea en la misma transacción
// que la escritura de la entidad y solo el relay la muta (a published).
type OutboxRecord struct {
	ID          int64      `json:"id"` // monotónico, asignado por el storage
	EventID     uuid.UUID  `json:"event_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"` // sobre serializado
	CreatedAt   time.Time  `json:"created_at"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// OutboxSource define el contrato que el relay necesita para drenar la
// tabla outbox. Es una interfaz pequeña a propósito: solo los métodos
// del bucle de polling.
type OutboxSource interface {
	// FetchUnpublished devuelve hasta 'limit' filas con published=false,
	// ordenadas por created_at ascendente (FIFO por productor).
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	// MarkPublishedBatch marca como publicadas todas las filas indicadas
	// en una sola escritura.
	MarkPublishedBatch(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error
}
