package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ratewatch/internal/domain"
)

// handleListAlertRules is `GET /alert-rules`.
func (s *Server) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"
	rules, err := s.eng.Alerts.ListRules(enabledOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleGetAlertRule is `GET /alert-rules/{id}`.
func (s *Server) handleGetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.eng.Alerts.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateAlertRule is `POST /alert-rules`.
func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.eng.Alerts.CreateRule(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateAlertRule is `PUT /alert-rules/{id}`.
func (s *Server) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	rule.ID = chi.URLParam(r, "id")

	updated, err := s.eng.Alerts.UpdateRule(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteAlertRule is `DELETE /alert-rules/{id}`.
func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Alerts.DeleteRule(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
