package reliability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRunBackup(t *testing.T) {
	svc, store := setupBackupService(t, 5)
	handler := NewHandler(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/backups/run", handler.HandleRunBackup)

	req := httptest.NewRequest("POST", "/backups/run", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Archive string `json:"archive"`
		Pruned  int    `json:"pruned"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Archive, archivePrefix)
	assert.Equal(t, 0, resp.Pruned)
	assert.Len(t, store.objects, 1)
}

func TestHandleListBackups(t *testing.T) {
	svc, store := setupBackupService(t, 5)
	handler := NewHandler(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/backups", handler.HandleListBackups)

	req := httptest.NewRequest("GET", "/backups", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	seedArchives(store, 2)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/backups", nil))

	var backups []BackupInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&backups))
	assert.Len(t, backups, 2)
}
