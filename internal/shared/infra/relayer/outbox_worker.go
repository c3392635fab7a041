package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// DeliveryLog es un sink opcional de auditoría (ClickHouse) donde el worker
// anota cada publicación confirmada. Best effort: sus fallos no afectan al
// estado de la outbox.
type DeliveryLog interface {
	LogBatch(ctx context.Context, envs []sharedDomain.EventEnvelope, publishedAt time.Time) error
}

// Worker drena la tabla outbox de forma genérica: un único bucle de polling
// por proceso, sin paralelismo interno, para preservar el orden FIFO por
// productor.
type Worker struct {
	source      sharedDomain.OutboxSource
	publisher   sharedDomain.EventPublisher
	deliveryLog DeliveryLog // puede ser nil
	interval    time.Duration
	batchSize   int
	log         *zap.Logger
}

func NewOutboxWorker(
	source sharedDomain.OutboxSource,
	publisher sharedDomain.EventPublisher,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// WithDeliveryLog conecta el sink de auditoría.
func (w *Worker) WithDeliveryLog(dl DeliveryLog) *Worker {
	w.deliveryLog = dl
	return w
}

// Start inicia el bucle de polling del worker. Bloquea hasta que el contexto
// se cancele; el shutdown es cooperativo, nunca a mitad de una escritura.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("🚀 Outbox relay iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
	)

	for {
		full := w.ProcessBatch(ctx)
		if full {
			// Batch completo: hay backlog, seguimos drenando sin dormir.
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox relay detenido.")
			return
		case <-time.After(w.interval):
		}
	}
}

// ProcessBatch ejecuta un ciclo de polling completo y devuelve true si el
// batch vino lleno (señal de backlog pendiente).
func (w *Worker) ProcessBatch(ctx context.Context) bool {
	records, err := w.source.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		// Storage caído: abortamos el ciclo, el siguiente tick reintenta.
		w.log.Warn("⚠️ Error al obtener eventos pendientes", zap.Error(err))
		return false
	}
	if len(records) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d eventos encontrados para publicar", len(records)))
	}

	publishedIDs := make([]uuid.UUID, 0, len(records))
	delivered := make([]sharedDomain.EventEnvelope, 0, len(records))

	for _, rec := range records {
		env, err := sharedDomain.DecodeEnvelope(rec.Payload)
		if err != nil {
			// Poison message: nunca va a deserializar bien y dejarlo pendiente
			// bloquearía todo el FIFO detrás de él. Lo marcamos publicado y
			// lo registramos como fallo de procesamiento.
			w.log.Error("☠️ Sobre indeserializable, se marca publicado para no bloquear el drain",
				zap.Int64("outbox_id", rec.ID),
				zap.String("event_id", rec.EventID.String()),
				zap.String("event_type", rec.EventType),
				zap.Error(err),
			)
			publishedIDs = append(publishedIDs, rec.EventID)
			continue
		}

		if err := w.publisher.Publish(ctx, env); err != nil {
			// Sin backoff por fila: el intervalo de polling es el backoff.
			w.log.Warn("⚠️ No se pudo publicar evento, quedará para el siguiente ciclo",
				zap.String("event_id", rec.EventID.String()),
				zap.String("event_type", rec.EventType),
				zap.Error(err),
			)
			continue
		}

		publishedIDs = append(publishedIDs, rec.EventID)
		delivered = append(delivered, env)
	}

	now := time.Now().UTC()
	if len(publishedIDs) > 0 {
		// Todos los cambios de estado del batch en una sola escritura.
		if err := w.source.MarkPublishedBatch(ctx, publishedIDs, now); err != nil {
			w.log.Warn("⚠️ No se pudo marcar el batch como publicado", zap.Error(err))
		} else {
			w.log.Info("✅ Batch publicado y marcado", zap.Int("count", len(publishedIDs)))
		}
	}

	if w.deliveryLog != nil && len(delivered) > 0 {
		if err := w.deliveryLog.LogBatch(ctx, delivered, now); err != nil {
			w.log.Warn("⚠️ Fallo al registrar en el delivery log", zap.Error(err))
		}
	}

	return len(records) == w.batchSize
}
