package events

import (
	"context"
	"encoding/json"
	"sync"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// InMemoryEventBus implementa un bus de eventos en memoria para despliegues
// locales sin broker. Entrega best-effort: si el canal de un suscriptor está
// lleno, el mensaje se descarta para ese suscriptor.
type InMemoryEventBus struct {
	subscribers []chan []byte
	mu          sync.RWMutex
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedDomain.EventPublisher = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make([]chan []byte, 0),
	}
}

// Publish serializa el sobre y lo envía a todos los suscriptores.
func (b *InMemoryEventBus) Publish(ctx context.Context, env sharedDomain.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return sharedDomain.WrapPermanent(err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subChan := range b.subscribers {
		select {
		case subChan <- data:
		default:
			// suscriptor saturado: descartamos, no bloqueamos al publicador
		}
	}
	return nil
}

// Subscribe registra un nuevo oyente y devuelve su canal.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	subChan := make(chan []byte, bufferSize)
	b.subscribers = append(b.subscribers, subChan)
	return subChan
}
