package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yumio/endwatch/internal/history"
	"github.com/yumio/endwatch/pkg/codes"
)

// Server provides the HTTP API over the watcher and run history.
type Server struct {
	watcher *codes.Watcher
	history *history.Log
	port    int
}

// New creates a new HTTP server. history may be nil when the run log is
// disabled.
func New(watcher *codes.Watcher, hist *history.Log, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		watcher: watcher,
		history: hist,
		port:    port,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/codes", s.handleCodes)
	mux.HandleFunc("/api/v1/watch", s.handleWatch)
	mux.HandleFunc("/api/v1/history/attendance", s.handleAttendanceHistory)
	mux.HandleFunc("/api/v1/history/watch", s.handleWatchHistory)

	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("endwatch server listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.watcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "code watch disabled"})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	notifiedOnly := r.URL.Query().Get("notified") == "true"
	sourceID := r.URL.Query().Get("source")

	tracked := s.watcher.ListLatest(limit, notifiedOnly, sourceID)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  tracked,
		"count": len(tracked),
	})
}

// handleWatch triggers a manual watch cycle. Manual runs never notify.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.watcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "code watch disabled"})
		return
	}

	summary, err := s.watcher.Run(r.Context(), codes.ReasonManual)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if s.history != nil {
		s.history.RecordWatch(r.Context(), summary)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAttendanceHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history disabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	entries, err := s.history.ListAttendance(r.Context(), r.URL.Query().Get("profile"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
	})
}

func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history disabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	entries, err := s.history.ListWatch(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
