package serverhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmHnd "colmatch-service/internal/colmatch/handler"
	"colmatch-service/internal/config"
	"colmatch-service/internal/worker"
	"colmatch-service/internal/workspace"
)

func newRouter(t *testing.T, maxMB int) http.Handler {
	t.Helper()
	jobs := worker.NewPool(1, zerolog.Nop())
	t.Cleanup(jobs.Close)
	return NewRouter(&cmHnd.Deps{
		Cfg:   config.Config{AllowOrigins: []string{"*"}, MaxUploadMB: maxMB},
		Log:   zerolog.Nop(),
		Store: workspace.New(),
		Jobs:  jobs,
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, 1).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes(t *testing.T) {
	h := newRouter(t, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "dataset not found")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/datasets", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/datasets/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDataset(t *testing.T) {
	store := workspace.New()
	jobs := worker.NewPool(1, zerolog.Nop())
	t.Cleanup(jobs.Close)
	h := NewRouter(&cmHnd.Deps{Cfg: config.Config{MaxUploadMB: 1}, Log: zerolog.Nop(), Store: store, Jobs: jobs})
	e := store.Create("stores.csv")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/datasets/"+e.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.List())
}

func TestBodyLimit(t *testing.T) {
	h := newRouter(t, 1)
	big := strings.Repeat("x", 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/datasets", strings.NewReader(big))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
