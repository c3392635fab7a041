package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	projDomain "github.com/enrolab/enrolab/internal/projection/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// MockViewRepository simula el repo de vistas proyectadas.
type MockViewRepository struct {
	mock.Mock
}

var _ projDomain.ViewRepository = (*MockViewRepository)(nil)

func (m *MockViewRepository) UpsertTx(ctx context.Context, tx *sql.Tx, view projDomain.RecordView) error {
	args := m.Called(ctx, tx, view)
	return args.Error(0)
}

func (m *MockViewRepository) DeleteTx(ctx context.Context, tx *sql.Tx, subject string) error {
	args := m.Called(ctx, tx, subject)
	return args.Error(0)
}

func (m *MockViewRepository) GetBySubject(ctx context.Context, subject string) (*projDomain.RecordView, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*projDomain.RecordView), args.Error(1)
}

func (m *MockViewRepository) List(ctx context.Context, entityType string) ([]projDomain.RecordView, error) {
	args := m.Called(ctx, entityType)
	return args.Get(0).([]projDomain.RecordView), args.Error(1)
}

// FakeInboxGuard deduplica en memoria, sin transacción real: invoca applyFn
// con tx nil, lo que encaja con repos mockeados que ignoran la transacción.
type FakeInboxGuard struct {
	mu   sync.Mutex
	seen map[uuid.UUID]time.Time
}

var _ sharedDomain.InboxGuard = (*FakeInboxGuard)(nil)

func NewFakeInboxGuard() *FakeInboxGuard {
	return &FakeInboxGuard{seen: make(map[uuid.UUID]time.Time)}
}

func (g *FakeInboxGuard) TryApply(ctx context.Context, env sharedDomain.EventEnvelope, applyFn sharedDomain.ApplyFn) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[env.EventID]; ok {
		return false, nil
	}
	if err := applyFn(nil); err != nil {
		return false, err
	}
	g.seen[env.EventID] = time.Now().UTC()
	return true, nil
}

func (g *FakeInboxGuard) PurgeOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var purged int64
	for id, at := range g.seen {
		if at.Before(threshold) {
			delete(g.seen, id)
			purged++
		}
	}
	return purged, nil
}

// DummyViewCache es una caché en memoria segura para concurrencia.
// Almacena bytes (JSON) para poder guardar cualquier tipo serializable.
type DummyViewCache struct {
	store map[string][]byte
	mu    sync.RWMutex
}

var _ projDomain.ViewCache = (*DummyViewCache)(nil)

func NewDummyViewCache() *DummyViewCache {
	return &DummyViewCache{store: make(map[string][]byte)}
}

func (c *DummyViewCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.store[key]
	if !ok {
		return false, nil // cache miss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DummyViewCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.store[key] = data
	return nil
}

func (c *DummyViewCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// Len devuelve el número de claves cacheadas (solo para asserts).
func (c *DummyViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
