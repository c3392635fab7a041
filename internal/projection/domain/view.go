package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RecordView es la fila del read model: la proyección plana de un registro
// tal y como la sirven las queries. Las proyecciones son idempotentes y
// conmutativas; el orden entre productores no está garantizado.
type RecordView struct {
	Subject    string    `json:"subject"` // "{entity-type}/{entity-id}", clave primaria
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var ErrViewNotFound = errors.New("record view not found")

// ViewRepository es el puerto del read model. Las mutaciones reciben la
// transacción abierta por el inbox guard para confirmarse junto al marcador.
type ViewRepository interface {
	UpsertTx(ctx context.Context, tx *sql.Tx, view RecordView) error
	DeleteTx(ctx context.Context, tx *sql.Tx, subject string) error
	GetBySubject(ctx context.Context, subject string) (*RecordView, error)
	List(ctx context.Context, entityType string) ([]RecordView, error)
}

// ViewCache es una caché clave-valor para las vistas proyectadas.
type ViewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error
	Delete(ctx context.Context, key string) error
}

// CacheKey devuelve la clave de caché de una vista.
func CacheKey(subject string) string {
	return "view:" + subject
}
