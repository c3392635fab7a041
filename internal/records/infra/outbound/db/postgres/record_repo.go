package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	"github.com/enrolab/enrolab/internal/records/domain"
	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
	sharedPostgres "github.com/enrolab/enrolab/internal/shared/infra/db/postgres"
)

// InitRecordSchema crea la tabla de registros si no existe.
func InitRecordSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id UUID PRIMARY KEY,
			entity_type TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

type RecordRepoPostgres struct {
	db *sql.DB
}

func NewRecordRepoPostgres(db *sql.DB) *RecordRepoPostgres {
	return &RecordRepoPostgres{db: db}
}

// Create inserta el registro y su sobre de outbox en una transacción.
func (r *RecordRepoPostgres) Create(ctx context.Context, rec *domain.Record, env sharedDomain.EventEnvelope) error {
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
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, string(rec.EntityType), rec.Name, rec.Email, rec.Status, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return err
	}

	if _, err = sharedPostgres.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// Update actualiza el registro y encola el sobre en la misma transacción.
func (r *RecordRepoPostgres) Update(ctx context.Context, rec *domain.Record, env sharedDomain.EventEnvelope) error {
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
		`UPDATE records SET name=$1, email=$2, status=$3, updated_at=$4 WHERE id=$5`,
		rec.Name, rec.Email, rec.Status, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return err
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		err = domain.ErrRecordNotFound
		return err
	}

	if _, err = sharedPostgres.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteByID elimina el registro y encola el sobre en la misma transacción.
func (r *RecordRepoPostgres) DeleteByID(ctx context.Context, id uuid.UUID, env sharedDomain.EventEnvelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id=$1`, id)
	if err != nil {
		return err
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		err = domain.ErrRecordNotFound
		return err
	}

	if _, err = sharedPostgres.AppendOutboxTx(ctx, tx, env); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID obtiene un registro por su id.
func (r *RecordRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	var rec domain.Record
	var entityType string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, name, email, status, created_at, updated_at
		 FROM records WHERE id = $1`, id,
	).Scan(&rec.ID, &entityType, &rec.Name, &rec.Email, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.EntityType = domain.EntityType(entityType)
	return &rec, nil
}

// Verificación en tiempo de compilación.
var _ domain.RecordRepository = (*RecordRepoPostgres)(nil)
