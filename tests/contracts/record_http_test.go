package contracts

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	recordsApp "github.com/enrolab/enrolab/internal/records/application"
	recordsHttp "github.com/enrolab/enrolab/internal/records/infra/inbound/http"
	recordsSqlite "github.com/enrolab/enrolab/internal/records/infra/outbound/db/sqlite"
	sharedSqlite "github.com/enrolab/enrolab/internal/shared/infra/db/sqlite"
)

// newRecordsAPI levanta el lado de escritura sobre SQLite en memoria.
func newRecordsAPI(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sharedSqlite.InitOutboxSchema(db))
	require.NoError(t, recordsSqlite.InitRecordSchema(db))

	service := recordsApp.NewRecordService(recordsSqlite.NewRecordRepoSQLite(db), zap.NewNop())
	router := gin.New()
	recordsHttp.RegisterRecordRoutes(router, recordsHttp.NewRecordHandler(service))
	return router, db
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordAPI_CreateLeavesOutboxRow(t *testing.T) {
	// ARRANGE
	router, db := newRecordsAPI(t)

	// ACT
	w := doJSON(router, http.MethodPost, "/records/prospect", `{"name": "Ana", "email": "ana@example.com"}`)

	// ASSERT: 201 con la entidad creada.
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID         uuid.UUID `json:"id"`
		EntityType string    `json:"entity_type"`
		Status     string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "prospect", created.EntityType)
	assert.Equal(t, "active", created.Status) // default

	// Entidad y evento en la misma transacción: debe haber una fila de outbox.
	var pending int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM outbox WHERE published = 0`).Scan(&pending))
	assert.Equal(t, 1, pending)
}

func TestRecordAPI_CreateInvalidEntity(t *testing.T) {
	router, _ := newRecordsAPI(t)

	w := doJSON(router, http.MethodPost, "/records/course", `{"name": "X", "email": "x@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordAPI_CreateValidationError(t *testing.T) {
	router, _ := newRecordsAPI(t)

	// Sin email.
	w := doJSON(router, http.MethodPost, "/records/student", `{"name": "Luis"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordAPI_GetAfterCreate(t *testing.T) {
	// ARRANGE
	router, _ := newRecordsAPI(t)

	w := doJSON(router, http.MethodPost, "/records/student", `{"name": "Luis", "email": "luis@example.com", "status": "enrolled"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// ACT
	w = doJSON(router, http.MethodGet, "/records/student/"+created.ID.String(), "")

	// ASSERT
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Luis", got.Name)
	assert.Equal(t, "enrolled", got.Status)
}

func TestRecordAPI_GetUnknownID(t *testing.T) {
	router, _ := newRecordsAPI(t)

	w := doJSON(router, http.MethodGet, "/records/prospect/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordAPI_UpdateAndDeleteQueueEvents(t *testing.T) {
	// ARRANGE
	router, db := newRecordsAPI(t)

	w := doJSON(router, http.MethodPost, "/records/instructor", `{"name": "Mar", "email": "mar@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// ACT
	w = doJSON(router, http.MethodPut, "/records/instructor/"+created.ID.String(), `{"status": "inactive"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/records/instructor/"+created.ID.String(), "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// ASSERT: created + updated + deleted en la outbox, y la entidad ya no está.
	var pending int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM outbox WHERE published = 0`).Scan(&pending))
	assert.Equal(t, 3, pending)

	w = doJSON(router, http.MethodGet, "/records/instructor/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
