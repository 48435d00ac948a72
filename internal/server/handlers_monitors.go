package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ratewatch/internal/domain"
)

// handleListMonitors is `GET /monitors`.
func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"
	monitors, err := s.eng.Monitors.List(enabledOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monitors)
}

// handleGetMonitor is `GET /monitors/{id}`.
func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Monitors.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleCreateMonitor is `POST /monitors`.
func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var m domain.Monitor
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.eng.Monitors.Create(m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateMonitor is `PUT /monitors/{id}`.
func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	var m domain.Monitor
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	m.ID = chi.URLParam(r, "id")

	updated, err := s.eng.Monitors.Update(m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteMonitor is `DELETE /monitors/{id}`.
func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Monitors.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
