package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// MessageWriter abstrae el writer de kafka-go para poder inyectar fakes en
// tests. *kafka.Writer lo cumple directamente.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TopicPublisher enruta cada sobre a su topic mediante el mapeo estático
// event_type → topic y reintenta solo los fallos transitorios con backoff
// exponencial acotado. El retry de largo plazo lo da el bucle del relay.
type TopicPublisher struct {
	writers     map[string]MessageWriter // topic → writer
	topics      map[string]string        // event_type → topic
	maxAttempts int
	baseDelay   time.Duration
	log         *zap.Logger
}

func NewTopicPublisher(writers map[string]MessageWriter, topics map[string]string, log *zap.Logger) *TopicPublisher {
	return &TopicPublisher{
		writers:     writers,
		topics:      topics,
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		log:         log,
	}
}

// WithRetryPolicy ajusta los parámetros de reintento (útil en tests).
func (p *TopicPublisher) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *TopicPublisher {
	p.maxAttempts = maxAttempts
	p.baseDelay = baseDelay
	return p
}

// Publish serializa el sobre y lo escribe en su topic. Un event_type sin
// mapeo es un error de configuración y se devuelve como permanente.
func (p *TopicPublisher) Publish(ctx context.Context, env sharedDomain.EventEnvelope) error {
	topic, ok := p.topics[env.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", sharedDomain.ErrUnknownEventType, env.EventType)
	}

	writer, ok := p.writers[topic]
	if !ok {
		return sharedDomain.WrapPermanent(fmt.Errorf("no writer configured for topic %q", topic))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return sharedDomain.WrapPermanent(err)
	}

	msg := kafka.Message{
		Key:   []byte(env.PartitionKey()), // FIFO por agregado
		Value: data,
	}

	delay := p.baseDelay
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := writer.WriteMessages(ctx, msg)
		if err == nil {
			p.log.Debug("✅ Evento publicado",
				zap.String("event_id", env.EventID.String()),
				zap.String("topic", topic),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = classify(err)
		if !sharedDomain.IsTransient(lastErr) {
			// Error permanente: sin reintentos, la fila queda sin publicar
			// hasta intervención del operador.
			return lastErr
		}

		if attempt == p.maxAttempts {
			break
		}

		p.log.Warn("⚠️ Fallo transitorio al publicar, reintentando",
			zap.String("event_id", env.EventID.String()),
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// classify decide si un error de kafka-go merece reintento. Solo los fallos
// tipo rate-limit/5xx (temporales para el broker) son transitorios; todo lo
// demás se trata como permanente.
func classify(err error) error {
	if sharedDomain.IsTransient(err) || errors.Is(err, sharedDomain.ErrPermanent) {
		return err
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		if kerr.Temporary() {
			return sharedDomain.WrapTransient(err)
		}
		return sharedDomain.WrapPermanent(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return sharedDomain.WrapTransient(err)
	}

	return sharedDomain.WrapPermanent(err)
}

// Verificación estática
var _ sharedDomain.EventPublisher = (*TopicPublisher)(nil)
