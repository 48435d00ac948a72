package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/domain"
)

func TestMonitorsCRUD(t *testing.T) {
	s := testServer(t)

	body, _ := json.Marshal(domain.Monitor{
		Name:    "btc funding",
		Formula: `${funding:binance:BTCUSDT}`,
		Enabled: true,
	})
	req := httptest.NewRequest(http.MethodPost, "/monitors/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.Monitor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "btc funding", created.Name)

	// List
	req = httptest.NewRequest(http.MethodGet, "/monitors/", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var list []domain.Monitor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 1)

	// Get
	req = httptest.NewRequest(http.MethodGet, "/monitors/"+created.ID, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Update
	created.Name = "btc funding renamed"
	body, _ = json.Marshal(created)
	req = httptest.NewRequest(http.MethodPut, "/monitors/"+created.ID, bytes.NewReader(body))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var updated domain.Monitor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "btc funding renamed", updated.Name)

	// Delete
	req = httptest.NewRequest(http.MethodDelete, "/monitors/"+created.ID, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/monitors/"+created.ID, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMonitor_InvalidJSON(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/monitors/", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMonitor_NotFound(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/monitors/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
