package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/ratewatch/internal/webhook"
)

// handleWebhookDistill ingests one Distill "webhook" payload. Token is
// validated against the configured shared secret; if none is
// configured, the token query param is ignored entirely (§6).
func (s *Server) handleWebhookDistill(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeErrorStatus(w, http.StatusUnauthorized, "token is required")
			return
		}
		if token != s.cfg.WebhookSecret {
			writeErrorStatus(w, http.StatusForbidden, "invalid token")
			return
		}
	}

	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}

	saved, err := s.eng.Webhooks.Process(payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"id":          saved.ID,
			"monitor_id":  saved.SourceID,
			"timestamp":   saved.Timestamp,
			"received_at": saved.ReceivedAt,
		},
	})
}

// handleWebhookStatus is the supplemented per-source aggregate named
// in the expanded spec: every distinct source_id's count/min/max/mean
// and latest sample, as computed by Store.SummaryAll.
func (s *Server) handleWebhookStatus(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.eng.Store.SummaryAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}
