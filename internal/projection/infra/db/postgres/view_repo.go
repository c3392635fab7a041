package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	"github.com/enrolab/enrolab/internal/projection/domain"
)

// InitViewSchema crea la tabla del read model si no existe.
func InitViewSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS record_views (
			subject TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id UUID NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// ViewRepoPostgres implementa la interfaz domain.ViewRepository.
type ViewRepoPostgres struct {
	db *sql.DB
}

func NewViewRepoPostgres(db *sql.DB) *ViewRepoPostgres {
	return &ViewRepoPostgres{db: db}
}

func (r *ViewRepoPostgres) UpsertTx(ctx context.Context, tx *sql.Tx, view domain.RecordView) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO record_views (subject, entity_type, entity_id, name, email, status, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (subject) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		view.Subject, view.EntityType, view.EntityID, view.Name, view.Email, view.Status, view.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record view: %w", err)
	}
	return nil
}

func (r *ViewRepoPostgres) DeleteTx(ctx context.Context, tx *sql.Tx, subject string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_views WHERE subject = $1`, subject); err != nil {
		return fmt.Errorf("failed to delete record view: %w", err)
	}
	return nil
}

func (r *ViewRepoPostgres) GetBySubject(ctx context.Context, subject string) (*domain.RecordView, error) {
	var view domain.RecordView
	err := r.db.QueryRowContext(ctx,
		`SELECT subject, entity_type, entity_id, name, email, status, updated_at
		 FROM record_views WHERE subject = $1`, subject,
	).Scan(&view.Subject, &view.EntityType, &view.EntityID, &view.Name, &view.Email, &view.Status, &view.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrViewNotFound
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (r *ViewRepoPostgres) List(ctx context.Context, entityType string) ([]domain.RecordView, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subject, entity_type, entity_id, name, email, status, updated_at
		 FROM record_views WHERE entity_type = $1 ORDER BY updated_at DESC`, entityType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.RecordView
	for rows.Next() {
		var view domain.RecordView
		if err := rows.Scan(&view.Subject, &view.EntityType, &view.EntityID, &view.Name, &view.Email, &view.Status, &view.UpdatedAt); err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, rows.Err()
}

// Verificación en tiempo de compilación.
var _ domain.ViewRepository = (*ViewRepoPostgres)(nil)
