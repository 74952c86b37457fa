package escalation

import (
	"encoding/json"
	"net/http"

	"github.com/julianstephens/agencydesk/internal/logger"
)

// Handler exposes the active notification and its acknowledge and dismiss
// actions to other local processes:
//
//	GET  /notifications/active
//	POST /reminders/{id}/ack
//	POST /reminders/{id}/dismiss
func (s *Scheduler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notifications/active", func(w http.ResponseWriter, _ *http.Request) {
		ev, ok := s.Active()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})
	mux.HandleFunc("POST /reminders/{id}/ack", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.reminders.Get(id); !ok {
			http.Error(w, "unknown reminder", http.StatusNotFound)
			return
		}
		if err := s.Acknowledge(r.Context(), id); err != nil {
			logger.Error("Acknowledge failed", "reminder", id, "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /reminders/{id}/dismiss", func(w http.ResponseWriter, r *http.Request) {
		if !s.Dismiss(r.PathValue("id")) {
			http.Error(w, "no active notification for reminder", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}
