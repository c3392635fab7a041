package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	recordsDomain "github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// spyHandler guarda los sobres recibidos y devuelve el error programado.
type spyHandler struct {
	envs []sharedDomain.EventEnvelope
	err  error
}

func (s *spyHandler) HandleEnvelope(ctx context.Context, env sharedDomain.EventEnvelope) error {
	s.envs = append(s.envs, env)
	return s.err
}

func TestEnvelopeConsumer_DecodesAndDelivers(t *testing.T) {
	// ARRANGE
	handler := &spyHandler{}
	consumer := NewEnvelopeConsumer(nil, handler, zap.NewNop())

	env := makeEnvelope(t, recordsDomain.StudentCreated)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	// ACT
	consumer.process(context.Background(), kafka.Message{
		Topic: recordsDomain.StudentTopic,
		Key:   []byte(env.Subject),
		Value: payload,
	})

	// ASSERT: el handler recibe el sobre tipado, no bytes.
	require.Len(t, handler.envs, 1)
	assert.Equal(t, env.EventID, handler.envs[0].EventID)
	assert.Equal(t, recordsDomain.StudentCreated, handler.envs[0].EventType)
}

func TestEnvelopeConsumer_SkipsUndeserializableMessage(t *testing.T) {
	handler := &spyHandler{}
	consumer := NewEnvelopeConsumer(nil, handler, zap.NewNop())

	consumer.process(context.Background(), kafka.Message{Value: []byte("{not json")})

	assert.Empty(t, handler.envs)
}

func TestEnvelopeConsumer_SkipsEnvelopeWithoutIdentity(t *testing.T) {
	// JSON válido pero sin eventId ni eventType: mismo destino que el
	// malformado, se salta sin llegar al handler.
	handler := &spyHandler{}
	consumer := NewEnvelopeConsumer(nil, handler, zap.NewNop())

	consumer.process(context.Background(), kafka.Message{Value: []byte(`{"subject":"prospect/p-1"}`)})

	assert.Empty(t, handler.envs)
}

func TestEnvelopeConsumer_HandlerErrorDoesNotPanic(t *testing.T) {
	// Un fallo de aplicación se registra y se deja al broker reentregar.
	handler := &spyHandler{err: errors.New("read model unavailable")}
	consumer := NewEnvelopeConsumer(nil, handler, zap.NewNop())

	env := makeEnvelope(t, recordsDomain.ProspectCreated)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	consumer.process(context.Background(), kafka.Message{Value: payload})

	require.Len(t, handler.envs, 1)
}
