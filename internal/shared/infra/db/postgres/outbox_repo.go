package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// InitOutboxSchema crea la tabla outbox y su índice de polling.
func InitOutboxSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			published_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (published, created_at);
	`)
	return err
}

// AppendOutboxTx inserta el sobre en la outbox dentro de la transacción del
// llamante. El id monotónico lo asigna la base de datos.
func AppendOutboxTx(ctx context.Context, tx *sql.Tx, env sharedDomain.EventEnvelope) (sharedDomain.OutboxRecord, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return sharedDomain.OutboxRecord{}, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	rec := sharedDomain.OutboxRecord{
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO outbox (event_id, event_type, payload, created_at, published)
		 VALUES ($1,$2,$3,$4,FALSE)
		 RETURNING id`,
		rec.EventID, rec.EventType, rec.Payload, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return sharedDomain.OutboxRecord{}, fmt.Errorf("failed to insert outbox record: %w", err)
	}

	return rec, nil
}

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxSource.
// Varias instancias del relay pueden competir: los duplicados ocasionales
// bajo carrera los absorbe el inbox guard del consumidor.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// FetchUnpublished obtiene los eventos no publicados, FIFO por created_at.
func (r *OutboxRepoPostgres) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, event_type, payload, created_at
		 FROM outbox
		 WHERE published = FALSE
		 ORDER BY created_at, id
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// MarkPublishedBatch marca todas las filas indicadas en una sola escritura.
func (r *OutboxRepoPostgres) MarkPublishedBatch(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(eventIDs))
	args := make([]interface{}, 0, len(eventIDs)+1)
	args = append(args, at)
	for i, id := range eventIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET published = TRUE, published_at = $1 WHERE event_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox batch published: %w", err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxSource = (*OutboxRepoPostgres)(nil)
