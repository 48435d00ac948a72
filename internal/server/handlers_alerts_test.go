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

func TestAlertRulesCRUD(t *testing.T) {
	s := testServer(t)

	body, _ := json.Marshal(domain.AlertRule{
		Name:      "high funding",
		Condition: `${funding:binance:BTCUSDT} > 0.01`,
		Level:     domain.LevelHigh,
		Enabled:   true,
		CooldownS: 300,
	})
	req := httptest.NewRequest(http.MethodPost, "/alert-rules/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.AlertRule
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)

	req = httptest.NewRequest(http.MethodGet, "/alert-rules/?enabled_only=true", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var list []domain.AlertRule
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 1)

	created.Level = domain.LevelCritical
	body, _ = json.Marshal(created)
	req = httptest.NewRequest(http.MethodPut, "/alert-rules/"+created.ID, bytes.NewReader(body))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var updated domain.AlertRule
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, domain.LevelCritical, updated.Level)

	req = httptest.NewRequest(http.MethodDelete, "/alert-rules/"+created.ID, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/alert-rules/"+created.ID, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAlertRule_NotFound(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/alert-rules/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
