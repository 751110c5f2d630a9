package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/models"
)

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions", nil)
	assert.True(t, RequireMethod(rec, req, http.MethodGet))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/transcriptions", nil)
	assert.False(t, RequireMethod(rec, req, http.MethodGet))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequireMethod_MultipleAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/transcriptions/job_1", nil)
	assert.True(t, RequireMethod(rec, req, http.MethodPost, http.MethodDelete))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/transcriptions/job_1", nil)
	assert.False(t, RequireMethod(rec, req, http.MethodPost, http.MethodDelete))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestWriteSurfaceError(t *testing.T) {
	rec := httptest.NewRecorder()
	serr := models.NewSurfaceError(models.CodeJobNotFound, "job job_1 not found")
	require.NoError(t, WriteSurfaceError(rec, serr))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Status string               `json:"status"`
		Error  *models.SurfaceError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, models.CodeJobNotFound, body.Error.Code)
}

func TestWriteSurfaceError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSurfaceError(rec, errors.New("boom")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error *models.SurfaceError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.CodeInternalError, body.Error.Code)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions?limit=25&offset=junk", nil)

	assert.Equal(t, 25, QueryInt(req, "limit", 50))
	assert.Equal(t, 0, QueryInt(req, "offset", 0)) // unparseable falls back
	assert.Equal(t, 50, QueryInt(req, "missing", 50))
}

func TestQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions?active=true&verbose=nope", nil)

	assert.True(t, QueryBool(req, "active"))
	assert.False(t, QueryBool(req, "verbose"))
	assert.False(t, QueryBool(req, "missing"))
}
