// Package httpapi is the admin HTTP surface: election status for
// operators/dashboards, the decided-leader view observers and external
// clients can poll, and an ops route to restart a stuck peer's container.
//
// Grounded on db_service/internal/server/server.go (gorilla/mux router,
// zerolog request-logging middleware, graceful Start/Stop) and
// redis_supervisor_service/internal/http/{handler,server}.go's simpler
// single-purpose leader endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/fzsens/zookeeper/internal/ledger"
	"github.com/fzsens/zookeeper/internal/ops"
	"github.com/fzsens/zookeeper/internal/peerserver"
)

// Server is the admin HTTP server.
type Server struct {
	http      *http.Server
	log       zerolog.Logger
	peer      *peerserver.Server
	ledger    *ledger.Store
	restarter *ops.ContainerRestarter
}

// New builds a Server bound to addr. restarter may be nil, in which case
// the restart route answers 503.
func New(addr string, peer *peerserver.Server, store *ledger.Store, restarter *ops.ContainerRestarter, log zerolog.Logger) *Server {
	s := &Server{
		log:       log,
		peer:      peer,
		ledger:    store,
		restarter: restarter,
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/decisions", s.decisions).Methods(http.MethodGet)
	r.HandleFunc("/elect", s.elect).Methods(http.MethodPost)
	r.HandleFunc("/ops/restart/{container}", s.restart).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the listener errors or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("address", s.http.Addr).Msg("httpapi: starting admin server")
	return s.http.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("httpapi: request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	SelfID          string  `json:"self_id"`
	State           string  `json:"state"`
	Leader          string  `json:"leader,omitempty"`
	Zxid            uint64  `json:"zxid,omitempty"`
	ElectionEpoch   uint64  `json:"election_epoch,omitempty"`
	PeerEpoch       uint64  `json:"peer_epoch,omitempty"`
	Decided         bool    `json:"decided"`
	DecisionLatency *string `json:"decision_latency,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		SelfID: s.peer.SelfID(),
		State:  s.peer.State().String(),
	}

	if v, ok := s.peer.DecidedVote(); ok {
		resp.Decided = true
		resp.Leader = v.Leader
		resp.Zxid = v.Zxid
		resp.ElectionEpoch = v.ElectionEpoch
		resp.PeerEpoch = v.PeerEpoch
	}

	if latency, ok := s.peer.DecisionLatency(); ok {
		str := latency.String()
		resp.DecisionLatency = &str
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decisions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.RecentDecisions(20)
	if err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to read decisions")
		http.Error(w, "failed to read decisions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) elect(w http.ResponseWriter, r *http.Request) {
	s.peer.TriggerElection()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "election triggered"})
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	if s.restarter == nil {
		http.Error(w, "container restart not configured", http.StatusServiceUnavailable)
		return
	}
	container := mux.Vars(r)["container"]
	if err := s.restarter.Restart(container); err != nil {
		s.log.Error().Err(err).Str("container", container).Msg("httpapi: restart failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted", "container": container})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
