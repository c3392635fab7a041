package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	recordsDomain "github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// MockRecordRepository simula el repo transaccional (entidad + outbox).
type MockRecordRepository struct {
	mock.Mock
}

var _ recordsDomain.RecordRepository = (*MockRecordRepository)(nil)

func (m *MockRecordRepository) Create(ctx context.Context, r *recordsDomain.Record, env sharedDomain.EventEnvelope) error {
	args := m.Called(ctx, r, env)
	return args.Error(0)
}

func (m *MockRecordRepository) Update(ctx context.Context, r *recordsDomain.Record, env sharedDomain.EventEnvelope) error {
	args := m.Called(ctx, r, env)
	return args.Error(0)
}

func (m *MockRecordRepository) DeleteByID(ctx context.Context, id uuid.UUID, env sharedDomain.EventEnvelope) error {
	args := m.Called(ctx, id, env)
	return args.Error(0)
}

func (m *MockRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*recordsDomain.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recordsDomain.Record), args.Error(1)
}
