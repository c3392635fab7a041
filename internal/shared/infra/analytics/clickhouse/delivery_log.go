package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
	"github.com/enrolab/enrolab/internal/shared/infra/relayer"
)

// DeliveryLogRepo registra cada publicación confirmada en ClickHouse para
// auditoría y alertas sobre la edad de la outbox.
type DeliveryLogRepo struct {
	db *sql.DB
}

// NewDeliveryLogRepo es el constructor.
func NewDeliveryLogRepo(addr string, dbName string) (*DeliveryLogRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	if err := initDeliveryLogSchema(conn); err != nil {
		return nil, fmt.Errorf("could not initialize delivery_log schema: %w", err)
	}

	return &DeliveryLogRepo{db: conn}, nil
}

// initDeliveryLogSchema crea la tabla de auditoría si no existe, igual que
// hacen los demás stores al arrancar. MergeTree ordenado por publicación:
// las consultas típicas son rangos temporales recientes.
func initDeliveryLogSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS delivery_log (
			event_id String,
			event_type String,
			subject String,
			producer String,
			correlation_id String,
			occurred_at DateTime64(3, 'UTC'),
			published_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (published_at, event_type)
	`)
	return err
}

// LogBatch inserta un lote de publicaciones. ClickHouse funciona mejor con
// inserciones en lotes, así que agrupamos todo el batch del relay.
func (r *DeliveryLogRepo) LogBatch(ctx context.Context, envs []sharedDomain.EventEnvelope, publishedAt time.Time) error {
	if len(envs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO delivery_log (event_id, event_type, subject, producer, correlation_id, occurred_at, published_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, env := range envs {
		if _, err := stmt.ExecContext(
			ctx,
			env.EventID.String(),
			env.EventType,
			env.Subject,
			env.Producer,
			env.CorrelationID,
			env.OccurredAt,
			publishedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", env.EventID, err)
		}
	}

	return tx.Commit()
}

// Verificación en tiempo de compilación.
var _ relayer.DeliveryLog = (*DeliveryLogRepo)(nil)
