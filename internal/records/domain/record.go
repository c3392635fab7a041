package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// EntityType distingue los tres tipos de registro de la plataforma.
type EntityType string

const (
	EntityProspect   EntityType = "prospect"
	EntityStudent    EntityType = "student"
	EntityInstructor EntityType = "instructor"
)

// Record es la entidad mínima del lado de escritura. El esquema de negocio
// completo (scoring, matrículas, etc.) vive fuera de este servicio; aquí
// solo necesitamos lo suficiente para producir hechos.
type Record struct {
	ID         uuid.UUID  `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Subject devuelve la ruta estable del recurso, "{entity-type}/{entity-id}".
func (r *Record) Subject() string {
	return string(r.EntityType) + "/" + r.ID.String()
}

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidEntity    = errors.New("invalid entity type")
	ErrRecordValidation = errors.New("record validation failed")
)

// RecordRepository es el puerto de persistencia del lado de escritura.
// Cada mutación recibe el sobre a encolar para que la implementación lo
// inserte en la tabla outbox dentro de la misma transacción.
type RecordRepository interface {
	Create(ctx context.Context, r *Record, env sharedDomain.EventEnvelope) error
	Update(ctx context.Context, r *Record, env sharedDomain.EventEnvelope) error
	DeleteByID(ctx context.Context, id uuid.UUID, env sharedDomain.EventEnvelope) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
}
