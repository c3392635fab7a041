package mocks

import (
	"context"
	"sync"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// RecordingBroadcaster captura los sobres difundidos al hub de sockets.
type RecordingBroadcaster struct {
	mu        sync.Mutex
	Envelopes []sharedDomain.EventEnvelope
}

func (b *RecordingBroadcaster) Broadcast(ctx context.Context, env sharedDomain.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Envelopes = append(b.Envelopes, env)
}

// Broadcasted devuelve una copia de los sobres capturados.
func (b *RecordingBroadcaster) Broadcasted() []sharedDomain.EventEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sharedDomain.EventEnvelope, len(b.Envelopes))
	copy(out, b.Envelopes)
	return out
}
