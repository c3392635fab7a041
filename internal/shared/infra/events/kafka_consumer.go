package events

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// EnvelopeHandler es el contrato de quien consume sobres ya decodificados
// (el proyector del read model). Un error devuelto significa "no aplicado":
// con entrega at-least-once el broker volverá a entregar el mensaje.
type EnvelopeHandler interface {
	HandleEnvelope(ctx context.Context, env sharedDomain.EventEnvelope) error
}

// EnvelopeConsumer escucha un topic y decodifica cada mensaje a EventEnvelope
// antes de entregarlo al handler. La decodificación vive aquí, en la frontera
// con el broker: un mensaje que no deserializa es poison y se salta con log,
// igual que hace el relay con las filas indeserializables de la outbox.
type EnvelopeConsumer struct {
	reader  *kafka.Reader
	handler EnvelopeHandler
	log     *zap.Logger
}

func NewEnvelopeConsumer(reader *kafka.Reader, handler EnvelopeHandler, log *zap.Logger) *EnvelopeConsumer {
	return &EnvelopeConsumer{
		reader:  reader,
		handler: handler,
		log:     log,
	}
}

// Start inicia el bucle de consumo en una goroutine.
func (c *EnvelopeConsumer) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de sobres",
		zap.String("topic", c.reader.Config().Topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	go func() {
		for {
			// ReadMessage es una llamada bloqueante.
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				// Si el contexto se cancela, el error es normal y salimos limpiamente.
				if ctx.Err() != nil {
					c.log.Info("🛑 Consumidor de sobres detenido.", zap.String("topic", c.reader.Config().Topic))
					return
				}
				c.log.Error("Error al leer mensaje del broker", zap.Error(err))
				continue
			}

			c.process(ctx, msg)
		}
	}()
}

// process decodifica y entrega un único mensaje. Separado del bucle de
// consumo para poder ejercitarlo sin broker.
func (c *EnvelopeConsumer) process(ctx context.Context, msg kafka.Message) {
	env, err := sharedDomain.DecodeEnvelope(msg.Value)
	if err != nil {
		// Poison: reintentar no lo arregla, se salta y se deja rastro.
		c.log.Error("☠️ Mensaje indeserializable en el topic, se salta",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
			zap.Error(err),
		)
		return
	}

	if err := c.handler.HandleEnvelope(ctx, env); err != nil {
		c.log.Warn("⚠️ Sobre no aplicado, el broker lo reentregará",
			zap.String("event_id", env.EventID.String()),
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
	}
}
