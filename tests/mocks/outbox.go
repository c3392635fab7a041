package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// MockOutboxSource simula la fuente de filas pendientes del relay.
type MockOutboxSource struct {
	mock.Mock
}

var _ sharedDomain.OutboxSource = (*MockOutboxSource)(nil)

func (m *MockOutboxSource) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxSource) MarkPublishedBatch(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error {
	args := m.Called(ctx, eventIDs, at)
	return args.Error(0)
}

// MockPublisher simula el puerto de salida hacia el broker.
type MockPublisher struct {
	mock.Mock
}

var _ sharedDomain.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, env sharedDomain.EventEnvelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// MockDeliveryLog simula el sink de auditoría del relay.
type MockDeliveryLog struct {
	mock.Mock
}

func (m *MockDeliveryLog) LogBatch(ctx context.Context, envs []sharedDomain.EventEnvelope, publishedAt time.Time) error {
	args := m.Called(ctx, envs, publishedAt)
	return args.Error(0)
}
