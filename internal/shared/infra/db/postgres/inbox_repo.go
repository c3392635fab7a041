package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// InitInboxSchema crea la tabla inbox.
func InitInboxSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS inbox (
			event_id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			correlation_id TEXT,
			subject TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_inbox_processed_at ON inbox (processed_at);
	`)
	return err
}

// InboxGuardPostgres implementa sharedDomain.InboxGuard sobre PostgreSQL.
type InboxGuardPostgres struct {
	db *sql.DB
}

func NewInboxGuardPostgres(db *sql.DB) *InboxGuardPostgres {
	return &InboxGuardPostgres{db: db}
}

// TryApply comprueba el marcador, ejecuta applyFn y lo inserta, todo en una
// única transacción.
func (g *InboxGuardPostgres) TryApply(ctx context.Context, env sharedDomain.EventEnvelope, applyFn sharedDomain.ApplyFn) (applied bool, err error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM inbox WHERE event_id = $1`, env.EventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check inbox record: %w", err)
	}

	if exists > 0 {
		tx.Rollback()
		return false, nil
	}

	if err = applyFn(tx); err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO inbox (event_id, event_type, processed_at, correlation_id, subject)
		 VALUES ($1,$2,$3,$4,$5)`,
		env.EventID, env.EventType, time.Now().UTC(), env.CorrelationID, env.Subject,
	); err != nil {
		return false, fmt.Errorf("failed to insert inbox record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeOlderThan elimina marcadores más antiguos que el umbral.
func (g *InboxGuardPostgres) PurgeOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := g.db.ExecContext(ctx, `DELETE FROM inbox WHERE processed_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to purge inbox records: %w", err)
	}
	return res.RowsAffected()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.InboxGuard = (*InboxGuardPostgres)(nil)
