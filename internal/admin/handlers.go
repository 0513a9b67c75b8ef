package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"refreshd/internal/job"
	"refreshd/internal/runner"
)

func (s *Service) handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(token, h) }

	// Liveness stays unauthenticated so probes don't need the token.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /jobs", wrap(s.handleJobs))
	mux.HandleFunc("GET /runs", wrap(s.handleRuns))
	mux.HandleFunc("POST /trigger", wrap(s.handleTrigger))
	return mux
}

func (s *Service) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Snapshot())
}

// handleRuns serves recent run history, newest first. It prefers the
// persistent store and falls back to the in-memory ring.
func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("job")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if s.runs != nil {
		recs, err := s.runs.RecentRuns(r.Context(), jobName, limit)
		if err != nil {
			http.Error(w, "store read failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}

	hist := s.eng.History() // oldest first
	out := make([]job.Run, 0, limit)
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		if jobName != "" && hist[i].Job != jobName {
			continue
		}
		out = append(out, hist[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleTrigger(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("job")
	if jobName == "" {
		http.Error(w, "missing job parameter", http.StatusBadRequest)
		return
	}
	if !s.limiter.Allow() {
		http.Error(w, "trigger rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	h, err := s.eng.Submit(jobName, job.CauseManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": h.ID(), "job": jobName})
	case errors.Is(err, runner.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, runner.ErrOverlapSkip):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
