package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/reconcile"
	"github.com/felixgeelhaar/keysync/internal/stats"
)

const defaultResultsLimit = 100

// recordResponse is the POST /v1/results reply.
type recordResponse struct {
	Fingerprint string                `json:"fingerprint"`
	Combination reconcile.Combination `json:"combination"`
	Queued      bool                  `json:"queued"`
	Message     string                `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Best-effort probe; a dead remote does not make the daemon
	// unhealthy, the flag is informational.
	if s.remote != nil {
		_ = s.remote.Ping(r.Context())
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"remote_online": s.remote != nil && s.remote.Online(),
		"pending":       s.engine.PendingCount(),
	})
}

func (s *Server) handleRecordResult(w http.ResponseWriter, r *http.Request) {
	var rec domain.Result
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid result payload", err)
		return
	}
	if err := rec.Validate(); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid result", err)
		return
	}

	out := s.engine.Record(r.Context(), rec)
	rec.Fingerprint = out.Fingerprint

	if out.Saved() {
		if _, err := s.pets.Apply(rec); err != nil {
			s.logger.Warn("pet progression not persisted", "error", err)
		}
		s.producer.PublishResult(r.Context(), rec, string(out.Combination))
	}
	if out.Queued {
		s.kickSync()
	}

	status := http.StatusCreated
	if !out.Saved() {
		status = http.StatusInsufficientStorage
	}
	s.jsonResponse(w, status, recordResponse{
		Fingerprint: out.Fingerprint,
		Combination: out.Combination,
		Queued:      out.Queued,
		Message:     out.StatusMessage(),
	})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = parsed
	}

	results := s.engine.ReconciledResults(r.Context(), limit)
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	// Aggregates are always recomputed from the merged view; limit 0
	// means everything both stores hold.
	results := s.engine.ReconciledResults(r.Context(), 0)
	s.jsonResponse(w, http.StatusOK, stats.Aggregate(results))
}

func (s *Server) handlePet(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.pets.State())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report := s.engine.SyncPending(r.Context())
	s.jsonResponse(w, http.StatusOK, report)
}
