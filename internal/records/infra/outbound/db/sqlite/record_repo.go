package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
	sharedSqlite "github.com/enrolab/enrolab/internal/shared/infra/db/sqlite"
)

// InitRecordSchema crea la tabla de registros si no existe.
func InitRecordSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

type RecordRepoSQLite struct {
	db *sql.DB
}

func NewRecordRepoSQLite(db *sql.DB) *RecordRepoSQLite {
	return &RecordRepoSQLite{db: db}
}

// Create inserta el registro y su sobre de outbox en una transacción: si el
// commit no llega, ninguno de los dos sobrevive.
func (r *RecordRepoSQLite) Create(ctx context.Context, rec *domain.Record, env sharedDomain.EventEnvelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, entity_type, name, email, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		rec.ID.String(), string(rec.EntityType), rec.Name, rec.Email, rec.Status, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return err
	}

	if _, err = sharedSqlite.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// Update actualiza el registro y encola el sobre en la misma transacción.
func (r *RecordRepoSQLite) Update(ctx context.Context, rec *domain.Record, env sharedDomain.EventEnvelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET name=?, email=?, status=?, updated_at=? WHERE id=?`,
		rec.Name, rec.Email, rec.Status, rec.UpdatedAt, rec.ID.String(),
	)
	if err != nil {
		return err
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		err = domain.ErrRecordNotFound
		return err
	}

	if _, err = sharedSqlite.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteByID elimina el registro y encola el sobre en la misma transacción.
func (r *RecordRepoSQLite) DeleteByID(ctx context.Context, id uuid.UUID, env sharedDomain.EventEnvelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id=?`, id.String())
	if err != nil {
		return err
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		err = domain.ErrRecordNotFound
		return err
	}

	if _, err = sharedSqlite.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID obtiene un registro por su id.
func (r *RecordRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	var rec domain.Record
	var idStr, entityType string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, name, email, status, created_at, updated_at
		 FROM records WHERE id = ?`, id.String(),
	).Scan(&idStr, &entityType, &rec.Name, &rec.Email, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	rec.EntityType = domain.EntityType(entityType)

	return &rec, nil
}

// Verificación en tiempo de compilación.
var _ domain.RecordRepository = (*RecordRepoSQLite)(nil)
