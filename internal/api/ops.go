package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"powersvc/adapters/store"
	"powersvc/domain/core"
	"powersvc/internal/compute"
	"powersvc/ports"
)

const maxRecentRuns = 500

// OpsServer serves health, docs, profiling and ledger inspection on the ops port
type OpsServer struct {
	pool   *compute.Pool
	ledger ports.RunLedger
}

// NewOpsRouter builds the ops router. ledger may be nil, in which case the
// run routes answer 404.
func NewOpsRouter(pool *compute.Pool, ledger ports.RunLedger) http.Handler {
	s := &OpsServer{pool: pool, ledger: ledger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/docs", handleDocs(renderReference()))

	r.Route("/debug/pprof", func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.Handle("/{profile}", http.HandlerFunc(pprof.Index))
	})

	r.Get("/runs/recent", s.handleRecentRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Workers int    `json:"workers"`
	Busy    int    `json:"busy"`
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.pool != nil {
		resp.Workers = s.pool.Workers()
		resp.Busy = s.pool.Busy()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *OpsServer) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "run ledger disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentRuns)
	}

	runs, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *OpsServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "run ledger disabled", http.StatusNotFound)
		return
	}
	id, err := core.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.ledger.Get(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
