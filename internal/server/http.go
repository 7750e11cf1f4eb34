package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"StakeVault/internal/observability"
	"StakeVault/internal/query"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer serves the read-only JSON API plus liveness/readiness probes.
// All state-changing traffic goes through NATS; this surface never mutates.
type HTTPServer struct {
	addr    string
	service *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewHTTPServer(addr string, service *query.Service, health *observability.HealthChecker, metrics *observability.Metrics) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		service: service,
		health:  health,
		metrics: metrics,
		log:     observability.NewLogger("http"),
	}
}

// Handler builds the route table. Split out from Run so tests can drive
// the mux directly.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health.LivenessHandler)
	mux.HandleFunc("GET /readyz", s.health.ReadinessHandler)

	mux.HandleFunc("GET /v1/vault", s.instrument("vault", s.handleVault))
	mux.HandleFunc("GET /v1/vault/holders/{id}", s.instrument("holder", s.handleHolder))
	mux.HandleFunc("GET /v1/rewards", s.instrument("rewards", s.handleRewards))
	mux.HandleFunc("GET /v1/keys", s.instrument("keys", s.handleKeys))
	mux.HandleFunc("GET /v1/keys/{id}", s.instrument("key", s.handleKey))
	mux.HandleFunc("GET /v1/fees", s.instrument("fees", s.handleFees))
	mux.HandleFunc("GET /v1/events", s.instrument("events", s.handleEvents))

	return mux
}

// Run starts the server and blocks until the context is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) handleVault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.VaultStatus())
}

func (s *HTTPServer) handleHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder id")
		return
	}
	writeJSON(w, http.StatusOK, s.service.HolderStatus(holder))
}

func (s *HTTPServer) handleRewards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.RewardsStatus())
}

func (s *HTTPServer) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListKeys())
}

func (s *HTTPServer) handleKey(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	info, err := s.service.GetKey(tokenID)
	if err != nil {
		if errors.Is(err, query.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.FeeStatus())
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := s.service.RecentEvents(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("recent events query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
