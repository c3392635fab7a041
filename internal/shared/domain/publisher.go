package domain

import "context"

// EventPublisher es el puerto de salida hacia el broker. La implementación
// decide topic y reintentos; el relay solo distingue éxito de fallo.
type EventPublisher interface {
	Publish(ctx context.Context, env EventEnvelope) error
}
