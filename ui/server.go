package ui

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/ports"
)

// Server is the read-only status surface over the certification ledger and
// trajectory log. It never mutates state; all writes go through the loop.
type Server struct {
	router     *chi.Mux
	ledger     ports.LedgerPort
	trajectory ports.TrajectoryLogPort
}

// NewServer creates the status API server
func NewServer(ledgerPort ports.LedgerPort, trajectory ports.TrajectoryLogPort) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		ledger:     ledgerPort,
		trajectory: trajectory,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ledger", s.handleListEntries)
	s.router.Get("/ledger/{fingerprint}", s.handleGetEntry)
	s.router.Get("/runs/{runID}/trajectory", s.handleTrajectory)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server on the given port
func (s *Server) ListenAndServe(port string) error {
	log.Printf("[StatusAPI] listening on :%s", port)
	return http.ListenAndServe(":"+port, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter := ports.LedgerFilter{Limit: 100}
	if stateParam := r.URL.Query().Get("state"); stateParam != "" {
		state := candidate.LifecycleState(stateParam)
		filter.State = &state
	}

	entries, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	fp := core.Fingerprint(chi.URLParam(r, "fingerprint"))
	entry, err := s.ledger.Get(r.Context(), fp)
	if err != nil {
		if core.IsNotFoundError(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	runID := core.RunID(chi.URLParam(r, "runID"))
	rounds, err := s.trajectory.Rounds(r.Context(), runID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"rounds": rounds,
		"count":  len(rounds),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[StatusAPI] encode response: %v", err)
	}
}
