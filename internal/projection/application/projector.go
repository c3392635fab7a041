package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	projDomain "github.com/enrolab/enrolab/internal/projection/domain"
	recordsDomain "github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// recordSnapshot es la parte del payload del evento que la proyección
// necesita. Tolerante a campos extra: la evolución del esquema es aditiva.
type recordSnapshot struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Status     string    `json:"status"`
}

// Projector aplica los eventos de registro sobre el read model pasando por
// el inbox guard: los redeliveries del broker se convierten en no-ops.
type Projector struct {
	guard sharedDomain.InboxGuard
	views projDomain.ViewRepository
	cache projDomain.ViewCache // puede ser nil
	log   *zap.Logger
}

func NewProjector(guard sharedDomain.InboxGuard, views projDomain.ViewRepository, cache projDomain.ViewCache, log *zap.Logger) *Projector {
	return &Projector{
		guard: guard,
		views: views,
		cache: cache,
		log:   log,
	}
}

// HandleEnvelope es el punto de entrada desde el consumidor del broker.
// Devolver el error de aplicación deja la redecisión en manos del broker:
// at-least-once garantiza el reintento.
func (p *Projector) HandleEnvelope(ctx context.Context, env sharedDomain.EventEnvelope) error {
	applied, err := p.Apply(ctx, env)
	if err != nil {
		p.log.Warn("⚠️ Fallo al proyectar evento, el broker lo reentregará",
			zap.String("event_id", env.EventID.String()),
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
		return err
	}

	if !applied {
		// Duplicado absorbido por el inbox guard: no es un error.
		p.log.Info("Evento duplicado ignorado",
			zap.String("event_id", env.EventID.String()),
			zap.String("event_type", env.EventType),
		)
	}
	return nil
}

// Apply proyecta un sobre sobre el read model. Devuelve (false, nil) si el
// guard lo saltó por duplicado.
func (p *Projector) Apply(ctx context.Context, env sharedDomain.EventEnvelope) (bool, error) {
	switch env.EventType {
	case recordsDomain.ProspectCreated, recordsDomain.ProspectUpdated,
		recordsDomain.StudentCreated, recordsDomain.StudentUpdated,
		recordsDomain.InstructorCreated, recordsDomain.InstructorUpdated:
		return p.applyUpsert(ctx, env)

	case recordsDomain.ProspectDeleted, recordsDomain.StudentDeleted, recordsDomain.InstructorDeleted:
		return p.applyDelete(ctx, env)

	default:
		p.log.Warn("Unknown event type", zap.String("type", env.EventType))
		return false, nil
	}
}

func (p *Projector) applyUpsert(ctx context.Context, env sharedDomain.EventEnvelope) (bool, error) {
	var snap recordSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		p.log.Warn("Failed to unmarshal event data", zap.String("event_id", env.EventID.String()), zap.Error(err))
		return false, nil
	}

	view := projDomain.RecordView{
		Subject:    env.Subject,
		EntityType: snap.EntityType,
		EntityID:   snap.ID,
		Name:       snap.Name,
		Email:      snap.Email,
		Status:     snap.Status,
		UpdatedAt:  env.OccurredAt,
	}

	applied, err := p.guard.TryApply(ctx, env, func(tx *sql.Tx) error {
		return p.views.UpsertTx(ctx, tx, view)
	})
	if err != nil || !applied {
		return applied, err
	}

	p.refreshCache(view)
	p.log.Info("✅ Vista proyectada",
		zap.String("subject", view.Subject),
		zap.String("event_type", env.EventType),
	)
	return true, nil
}

func (p *Projector) applyDelete(ctx context.Context, env sharedDomain.EventEnvelope) (bool, error) {
	applied, err := p.guard.TryApply(ctx, env, func(tx *sql.Tx) error {
		return p.views.DeleteTx(ctx, tx, env.Subject)
	})
	if err != nil || !applied {
		return applied, err
	}

	if p.cache != nil {
		go func(subject string) {
			ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = p.cache.Delete(ctxCache, projDomain.CacheKey(subject))
		}(env.Subject)
	}

	p.log.Info("🗑️ Vista eliminada", zap.String("subject", env.Subject))
	return true, nil
}

// refreshCache actualiza la caché en background sin bloquear la proyección.
func (p *Projector) refreshCache(view projDomain.RecordView) {
	if p.cache == nil {
		return
	}
	go func() {
		ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = p.cache.Set(ctxCache, projDomain.CacheKey(view.Subject), view, 60)
	}()
}
