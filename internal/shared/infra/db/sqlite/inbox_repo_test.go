package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

func TestInboxGuard_TryApply_FirstTimeApplies(t *testing.T) {
	// ARRANGE
	db := newTestDB(t)
	guard := NewInboxGuardSQLite(db)

	env, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/p-1", nil)
	require.NoError(t, err)

	calls := 0

	// ACT
	applied, err := guard.TryApply(context.Background(), env, func(tx *sql.Tx) error {
		calls++
		return nil
	})

	// ASSERT
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, calls)
}

func TestInboxGuard_TryApply_DuplicateSkipped(t *testing.T) {
	// ARRANGE: el mismo sobre llega dos veces (redelivery at-least-once).
	db := newTestDB(t)
	guard := NewInboxGuardSQLite(db)
	ctx := context.Background()

	env, err := sharedDomain.NewEnvelope("StudentUpdated", "test-producer", "student/s-1", nil)
	require.NoError(t, err)

	calls := 0
	apply := func(tx *sql.Tx) error {
		calls++
		return nil
	}

	// ACT
	first, err := guard.TryApply(ctx, env, apply)
	require.NoError(t, err)
	second, err := guard.TryApply(ctx, env, apply)
	require.NoError(t, err)

	// ASSERT: una sola aplicación.
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, calls)
}

func TestInboxGuard_TryApply_ApplyErrorRollsBackMarker(t *testing.T) {
	// ARRANGE: applyFn falla, el marcador no debe quedar insertado.
	db := newTestDB(t)
	guard := NewInboxGuardSQLite(db)
	ctx := context.Background()

	env, err := sharedDomain.NewEnvelope("InstructorCreated", "test-producer", "instructor/i-1", nil)
	require.NoError(t, err)

	boom := errors.New("projection write failed")

	// ACT
	applied, err := guard.TryApply(ctx, env, func(tx *sql.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, applied)

	// ASSERT: el reintento vuelve a ejecutar applyFn.
	applied, err = guard.TryApply(ctx, env, func(tx *sql.Tx) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestInboxGuard_TryApply_MarkerAndWriteShareTransaction(t *testing.T) {
	// ARRANGE: la mutación usa la misma transacción que el marcador.
	db := newTestDB(t)
	_, err := db.Exec(`CREATE TABLE side_effect (id INTEGER PRIMARY KEY, note TEXT)`)
	require.NoError(t, err)

	guard := NewInboxGuardSQLite(db)
	ctx := context.Background()

	env, err := sharedDomain.NewEnvelope("ProspectUpdated", "test-producer", "prospect/p-2", nil)
	require.NoError(t, err)

	// ACT
	applied, err := guard.TryApply(ctx, env, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO side_effect (note) VALUES (?)`, "applied")
		return err
	})
	require.NoError(t, err)
	require.True(t, applied)

	// ASSERT
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM side_effect`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInboxGuard_PurgeOlderThan(t *testing.T) {
	// ARRANGE: un marcador viejo y uno reciente.
	db := newTestDB(t)
	guard := NewInboxGuardSQLite(db)
	ctx := context.Background()

	oldEnv, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/old", nil)
	require.NoError(t, err)
	newEnv, err := sharedDomain.NewEnvelope("ProspectCreated", "test-producer", "prospect/new", nil)
	require.NoError(t, err)

	_, err = guard.TryApply(ctx, oldEnv, func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)
	_, err = guard.TryApply(ctx, newEnv, func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)

	// Envejecemos el primer marcador por debajo del umbral de retención.
	_, err = db.Exec(`UPDATE inbox SET processed_at = ? WHERE event_id = ?`,
		time.Now().UTC().Add(-8*24*time.Hour), oldEnv.EventID.String())
	require.NoError(t, err)

	// ACT
	purged, err := guard.PurgeOlderThan(ctx, time.Now().UTC().Add(-7*24*time.Hour))

	// ASSERT: solo el viejo se elimina, y su event_id vuelve a aplicar.
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	applied, err := guard.TryApply(ctx, newEnv, func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)
	assert.False(t, applied, "el marcador reciente debe seguir deduplicando")
}
