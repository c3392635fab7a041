package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// Producer es el nombre con el que este servicio firma sus sobres.
const Producer = "enrolab-records"

// RecordService define los casos de uso del lado de escritura. Cada mutación
// produce su sobre y lo entrega al repositorio para que entidad y outbox se
// confirmen en la misma transacción.
type RecordService struct {
	repo domain.RecordRepository
	log  *zap.Logger
}

// NewRecordService constructor
func NewRecordService(repo domain.RecordRepository, log *zap.Logger) *RecordService {
	return &RecordService{repo: repo, log: log}
}

func (s *RecordService) CreateRecord(ctx context.Context, entity domain.EntityType, name, email, status, correlationID string) (*domain.Record, error) {
	eventType := domain.EventTypeFor(entity, "Created")
	if eventType == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEntity, entity)
	}

	now := time.Now().UTC()
	record := &domain.Record{
		ID:         uuid.New(),
		EntityType: entity,
		Name:       name,
		Email:      email,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	env, err := sharedDomain.NewEnvelope(eventType, Producer, record.Subject(), record)
	if err != nil {
		// Si el payload no serializa, la escritura entera debe fallar.
		return nil, err
	}
	env.CorrelationID = correlationID

	if err := s.repo.Create(ctx, record, env); err != nil {
		return nil, err
	}

	s.log.Info("📝 Registro creado",
		zap.String("subject", record.Subject()),
		zap.String("event_id", env.EventID.String()),
	)
	return record, nil
}

func (s *RecordService) UpdateRecord(ctx context.Context, r *domain.Record, correlationID string) error {
	eventType := domain.EventTypeFor(r.EntityType, "Updated")
	if eventType == "" {
		return fmt.Errorf("%w: %s", domain.ErrInvalidEntity, r.EntityType)
	}

	r.UpdatedAt = time.Now().UTC()

	env, err := sharedDomain.NewEnvelope(eventType, Producer, r.Subject(), r)
	if err != nil {
		return err
	}
	env.CorrelationID = correlationID

	return s.repo.Update(ctx, r, env)
}

func (s *RecordService) DeleteRecord(ctx context.Context, id uuid.UUID, correlationID string) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	eventType := domain.EventTypeFor(record.EntityType, "Deleted")

	env, err := sharedDomain.NewEnvelope(eventType, Producer, record.Subject(), map[string]string{"id": id.String()})
	if err != nil {
		return err
	}
	env.CorrelationID = correlationID

	return s.repo.DeleteByID(ctx, id, env)
}

func (s *RecordService) GetRecord(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	return s.repo.GetByID(ctx, id)
}
