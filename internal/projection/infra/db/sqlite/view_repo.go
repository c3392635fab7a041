package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/enrolab/enrolab/internal/projection/domain"
)

// InitViewSchema crea la tabla del read model si no existe.
func InitViewSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS record_views (
			subject TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// ViewRepoSQLite implementa la interfaz domain.ViewRepository.
type ViewRepoSQLite struct {
	db *sql.DB
}

func NewViewRepoSQLite(db *sql.DB) *ViewRepoSQLite {
	return &ViewRepoSQLite{db: db}
}

// UpsertTx inserta o reemplaza la vista dentro de la transacción del guard.
func (r *ViewRepoSQLite) UpsertTx(ctx context.Context, tx *sql.Tx, view domain.RecordView) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO record_views (subject, entity_type, entity_id, name, email, status, updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(subject) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		view.Subject, view.EntityType, view.EntityID.String(), view.Name, view.Email, view.Status, view.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record view: %w", err)
	}
	return nil
}

// DeleteTx elimina la vista dentro de la transacción del guard. Borrar una
// vista inexistente no es un error: las proyecciones deben ser conmutativas.
func (r *ViewRepoSQLite) DeleteTx(ctx context.Context, tx *sql.Tx, subject string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_views WHERE subject = ?`, subject); err != nil {
		return fmt.Errorf("failed to delete record view: %w", err)
	}
	return nil
}

// GetBySubject obtiene una vista por su subject.
func (r *ViewRepoSQLite) GetBySubject(ctx context.Context, subject string) (*domain.RecordView, error) {
	var view domain.RecordView
	var entityIDStr string

	err := r.db.QueryRowContext(ctx,
		`SELECT subject, entity_type, entity_id, name, email, status, updated_at
		 FROM record_views WHERE subject = ?`, subject,
	).Scan(&view.Subject, &view.EntityType, &entityIDStr, &view.Name, &view.Email, &view.Status, &view.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrViewNotFound
	}
	if err != nil {
		return nil, err
	}

	view.EntityID, err = uuid.Parse(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in record view %s: %w", subject, err)
	}
	return &view, nil
}

// List devuelve las vistas de un tipo de entidad.
func (r *ViewRepoSQLite) List(ctx context.Context, entityType string) ([]domain.RecordView, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subject, entity_type, entity_id, name, email, status, updated_at
		 FROM record_views WHERE entity_type = ? ORDER BY updated_at DESC`, entityType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.RecordView
	for rows.Next() {
		var view domain.RecordView
		var entityIDStr string
		if err := rows.Scan(&view.Subject, &view.EntityType, &entityIDStr, &view.Name, &view.Email, &view.Status, &view.UpdatedAt); err != nil {
			return nil, err
		}
		view.EntityID, err = uuid.Parse(entityIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in record view %s: %w", view.Subject, err)
		}
		views = append(views, view)
	}

	return views, rows.Err()
}

// Verificación en tiempo de compilación.
var _ domain.ViewRepository = (*ViewRepoSQLite)(nil)
