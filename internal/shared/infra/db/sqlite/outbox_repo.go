package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// InitOutboxSchema crea la tabla outbox si no existe. El índice sobre
// (published, created_at) hace eficiente el polling del relay.
func InitOutboxSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			published_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (published, created_at);
	`)
	return err
}

// AppendOutboxTx inserta el sobre en la tabla outbox dentro de la transacción
// del llamante. Sin efectos fuera de la transacción: si esta hace rollback,
// la fila no sobrevive.
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

	res, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (event_id, event_type, payload, created_at, published)
		 VALUES (?,?,?,?,0)`,
		rec.EventID.String(), rec.EventType, string(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return sharedDomain.OutboxRecord{}, fmt.Errorf("failed to insert outbox record: %w", err)
	}

	rec.ID, err = res.LastInsertId()
	if err != nil {
		return sharedDomain.OutboxRecord{}, fmt.Errorf("failed to get outbox record id: %w", err)
	}

	return rec, nil
}

// OutboxRepoSQLite implementa la interfaz sharedDomain.OutboxSource.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// FetchUnpublished obtiene los eventos no publicados, FIFO por created_at.
func (r *OutboxRepoSQLite) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, event_type, payload, created_at
		 FROM outbox
		 WHERE published = 0
		 ORDER BY created_at, id
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		var eventIDStr, payloadStr string

		if err := rows.Scan(&rec.ID, &eventIDStr, &rec.EventType, &payloadStr, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.EventID, err = uuid.Parse(eventIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row %d: %w", rec.ID, err)
		}
		rec.Payload = []byte(payloadStr)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// MarkPublishedBatch marca todas las filas indicadas en una sola escritura.
func (r *OutboxRepoSQLite) MarkPublishedBatch(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(eventIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(eventIDs)+1)
	args = append(args, at)
	for _, id := range eventIDs {
		args = append(args, id.String())
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET published = 1, published_at = ? WHERE event_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox batch published: %w", err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxSource = (*OutboxRepoSQLite)(nil)
